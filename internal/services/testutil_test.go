package services

import (
	"fmt"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yungbote/experiment-backend/internal/logger"
	"github.com/yungbote/experiment-backend/internal/repos"
	"github.com/yungbote/experiment-backend/internal/types"
)

var testDBSeq atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:engine_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&types.Experiment{},
		&types.Variant{},
		&types.Participant{},
		&types.TrackedEvent{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func newTestEngine(t *testing.T, db *gorm.DB) *ExperimentEngine {
	t.Helper()
	log := newTestLogger(t)
	return NewExperimentEngine(
		db,
		log,
		repos.NewExperimentRepo(db, log),
		repos.NewParticipantRepo(db, log),
		repos.NewEventRepo(db, log),
		NopNotifier{},
	)
}
