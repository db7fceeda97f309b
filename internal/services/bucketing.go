package services

import (
	"crypto/sha256"
	"encoding/binary"
	"strings"

	"github.com/google/uuid"
)

// Bucketing salts. Variant selection and the traffic gate hash the same
// (experiment, user) pair under different salts so both draws are sticky per
// user but statistically independent of each other.
const (
	bucketSaltVariant = "variant"
	bucketSaltTraffic = "traffic"
)

// bucketValue maps (experimentID, userID, salt) to a stable value in
// [0, 100). sha256 rather than a seeded PRNG so the result is identical
// across calls, restarts and processes.
func bucketValue(experimentID uuid.UUID, userID, salt string) float64 {
	h := sha256.New()
	_, _ = h.Write([]byte(experimentID.String()))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(userID))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(salt))
	sum := h.Sum(nil)

	// 53 bits keeps the uint -> float64 conversion exact.
	v := binary.BigEndian.Uint64(sum[:8]) >> 11
	return float64(v) / float64(1<<53) * 100.0
}

var botMarkers = []string{
	"bot", "crawler", "spider", "slurp", "curl", "wget", "python-requests",
	"headless", "lighthouse", "pingdom", "facebookexternalhit",
}

func isBotUserAgent(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return false
	}
	for _, marker := range botMarkers {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}

// deviceTypeFromUserAgent is a coarse mobile/tablet/desktop split, only used
// to feed the device-type targeting rule when the caller did not classify
// the request itself.
func deviceTypeFromUserAgent(userAgent string) string {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return ""
	}
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return "tablet"
	case strings.Contains(ua, "mobi") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		return "mobile"
	default:
		return "desktop"
	}
}
