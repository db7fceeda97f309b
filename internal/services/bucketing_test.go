package services

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestBucketValueIsStableAndBounded(t *testing.T) {
	experimentID := uuid.MustParse("6f1b24a2-98ce-4c6f-9d2e-3a1f5c7b8d90")

	for i := 0; i < 1000; i++ {
		userID := fmt.Sprintf("user-%d", i)
		first := bucketValue(experimentID, userID, bucketSaltVariant)
		if first < 0 || first >= 100 {
			t.Fatalf("bucket out of range for %s: %v", userID, first)
		}
		if again := bucketValue(experimentID, userID, bucketSaltVariant); again != first {
			t.Fatalf("bucket not stable for %s: %v then %v", userID, first, again)
		}
	}
}

func TestBucketValueVariesByInput(t *testing.T) {
	experimentID := uuid.MustParse("6f1b24a2-98ce-4c6f-9d2e-3a1f5c7b8d90")
	otherExperiment := uuid.MustParse("0e9d8c7b-6a5f-4e3d-2c1b-0a9f8e7d6c5b")

	base := bucketValue(experimentID, "user-1", bucketSaltVariant)
	if got := bucketValue(experimentID, "user-2", bucketSaltVariant); got == base {
		t.Fatal("different users bucketed identically")
	}
	if got := bucketValue(otherExperiment, "user-1", bucketSaltVariant); got == base {
		t.Fatal("different experiments bucketed identically")
	}
	if got := bucketValue(experimentID, "user-1", bucketSaltTraffic); got == base {
		t.Fatal("different salts bucketed identically")
	}
}

func TestBucketValueSpreadsEvenly(t *testing.T) {
	experimentID := uuid.MustParse("6f1b24a2-98ce-4c6f-9d2e-3a1f5c7b8d90")

	var below50 int
	for i := 0; i < 1000; i++ {
		if bucketValue(experimentID, fmt.Sprintf("user-%d", i), bucketSaltVariant) < 50 {
			below50++
		}
	}
	if below50 < 450 || below50 > 550 {
		t.Fatalf("lower half count out of band: %d", below50)
	}
}

func TestIsBotUserAgent(t *testing.T) {
	bots := []string{
		"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		"curl/8.4.0",
		"Mozilla/5.0 (compatible; AhrefsBot/7.0)",
		"python-requests/2.31.0",
		"Mozilla/5.0 HeadlessChrome/120.0",
	}
	for _, ua := range bots {
		if !isBotUserAgent(ua) {
			t.Fatalf("not flagged as bot: %q", ua)
		}
	}

	humans := []string{
		"",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Version/17.0 Mobile/15E148 Safari/604.1",
	}
	for _, ua := range humans {
		if isBotUserAgent(ua) {
			t.Fatalf("flagged as bot: %q", ua)
		}
	}
}

func TestDeviceTypeFromUserAgent(t *testing.T) {
	cases := []struct {
		ua   string
		want string
	}{
		{"", ""},
		{"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X)", "tablet"},
		{"Mozilla/5.0 (Linux; Android 14; SM-X910) Tablet Safari", "tablet"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148", "mobile"},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobile Safari/537.36", "mobile"},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0", "desktop"},
	}
	for _, tc := range cases {
		if got := deviceTypeFromUserAgent(tc.ua); got != tc.want {
			t.Fatalf("deviceTypeFromUserAgent(%q): want=%q got=%q", tc.ua, tc.want, got)
		}
	}
}
