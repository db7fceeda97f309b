package repos

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yungbote/experiment-backend/internal/logger"
	"github.com/yungbote/experiment-backend/internal/types"
)

var testDBSeq atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repos_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
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

func seedExperiment(t *testing.T, db *gorm.DB, repo ExperimentRepo) *types.Experiment {
	t.Helper()
	experiment := &types.Experiment{
		Name:   "headline-test",
		Status: types.ExperimentStatusActive,
		Variants: []*types.Variant{
			{Name: "control", Weight: 50, Position: 0},
			{Name: "treatment", Weight: 50, Position: 1},
		},
	}
	if err := repo.Create(context.Background(), nil, experiment); err != nil {
		t.Fatalf("seed experiment: %v", err)
	}
	return experiment
}

func TestExperimentGetByIDNotFound(t *testing.T) {
	repo := NewExperimentRepo(newTestDB(t), newTestLogger(t))

	if _, err := repo.GetByID(context.Background(), nil, uuid.New()); !errors.Is(err, ErrExperimentNotFound) {
		t.Fatalf("want ErrExperimentNotFound, got %v", err)
	}
	if _, err := repo.GetByID(context.Background(), nil, uuid.Nil); !errors.Is(err, ErrExperimentNotFound) {
		t.Fatalf("nil id: want ErrExperimentNotFound, got %v", err)
	}
}

func TestExperimentGetByIDPreloadsVariantsInOrder(t *testing.T) {
	db := newTestDB(t)
	repo := NewExperimentRepo(db, newTestLogger(t))

	experiment := &types.Experiment{
		Name:   "order-test",
		Status: types.ExperimentStatusDraft,
		// Insert out of position order on purpose.
		Variants: []*types.Variant{
			{Name: "c", Weight: 20, Position: 2},
			{Name: "a", Weight: 50, Position: 0},
			{Name: "b", Weight: 30, Position: 1},
		},
	}
	if err := repo.Create(context.Background(), nil, experiment); err != nil {
		t.Fatalf("Create: %v", err)
	}

	stored, err := repo.GetByID(context.Background(), nil, experiment.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(stored.Variants) != 3 {
		t.Fatalf("variants: want=3 got=%d", len(stored.Variants))
	}
	for i, want := range []string{"a", "b", "c"} {
		if stored.Variants[i].Name != want {
			t.Fatalf("variant %d: want=%q got=%q", i, want, stored.Variants[i].Name)
		}
	}
}

func TestExperimentUpdateStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewExperimentRepo(db, newTestLogger(t))
	experiment := seedExperiment(t, db, repo)

	now := time.Now().UTC()
	if err := repo.UpdateStatus(context.Background(), nil, experiment.ID, types.ExperimentStatusCompleted, nil, &now); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	stored, err := repo.GetByID(context.Background(), nil, experiment.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != types.ExperimentStatusCompleted {
		t.Fatalf("status: want=completed got=%s", stored.Status)
	}
	if stored.EndDate == nil {
		t.Fatal("end date not persisted")
	}

	if err := repo.UpdateStatus(context.Background(), nil, uuid.New(), types.ExperimentStatusPaused, nil, nil); !errors.Is(err, ErrExperimentNotFound) {
		t.Fatalf("unknown id: want ErrExperimentNotFound, got %v", err)
	}
}

func TestExperimentListByStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewExperimentRepo(db, newTestLogger(t))

	seedExperiment(t, db, repo)
	draft := &types.Experiment{Name: "draft-test", Status: types.ExperimentStatusDraft}
	if err := repo.Create(context.Background(), nil, draft); err != nil {
		t.Fatalf("Create: %v", err)
	}

	active, err := repo.ListByStatus(context.Background(), nil, types.ExperimentStatusActive)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(active) != 1 || active[0].Name != "headline-test" {
		t.Fatalf("active list: %+v", active)
	}

	all, err := repo.List(context.Background(), nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("full list: want=2 got=%d", len(all))
	}
}

func TestParticipantDuplicateAssignment(t *testing.T) {
	db := newTestDB(t)
	experimentRepo := NewExperimentRepo(db, newTestLogger(t))
	repo := NewParticipantRepo(db, newTestLogger(t))
	experiment := seedExperiment(t, db, experimentRepo)

	first := &types.Participant{
		ExperimentID: experiment.ID,
		UserID:       "user-1",
		VariantID:    experiment.Variants[0].ID,
		AssignedAt:   time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), nil, first); err != nil {
		t.Fatalf("first Create: %v", err)
	}

	second := &types.Participant{
		ExperimentID: experiment.ID,
		UserID:       "user-1",
		VariantID:    experiment.Variants[1].ID,
		AssignedAt:   time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), nil, second); !errors.Is(err, ErrDuplicateAssignment) {
		t.Fatalf("want ErrDuplicateAssignment, got %v", err)
	}

	// Same user in a different experiment is a different row.
	other := seedExperiment(t, db, experimentRepo)
	third := &types.Participant{
		ExperimentID: other.ID,
		UserID:       "user-1",
		VariantID:    other.Variants[0].ID,
		AssignedAt:   time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), nil, third); err != nil {
		t.Fatalf("cross-experiment Create: %v", err)
	}
}

func TestParticipantGetByExperimentAndUser(t *testing.T) {
	db := newTestDB(t)
	experimentRepo := NewExperimentRepo(db, newTestLogger(t))
	repo := NewParticipantRepo(db, newTestLogger(t))
	experiment := seedExperiment(t, db, experimentRepo)

	got, err := repo.GetByExperimentAndUser(context.Background(), nil, experiment.ID, "user-1")
	if err != nil || got != nil {
		t.Fatalf("miss: want (nil, nil), got (%v, %v)", got, err)
	}

	participant := &types.Participant{
		ExperimentID: experiment.ID,
		UserID:       "user-1",
		VariantID:    experiment.Variants[0].ID,
		AssignedAt:   time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), nil, participant); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err = repo.GetByExperimentAndUser(context.Background(), nil, experiment.ID, "user-1")
	if err != nil {
		t.Fatalf("hit: %v", err)
	}
	if got == nil || got.VariantID != experiment.Variants[0].ID {
		t.Fatalf("hit: %+v", got)
	}
}

func TestParticipantCountByVariant(t *testing.T) {
	db := newTestDB(t)
	experimentRepo := NewExperimentRepo(db, newTestLogger(t))
	repo := NewParticipantRepo(db, newTestLogger(t))
	experiment := seedExperiment(t, db, experimentRepo)

	for i := 0; i < 5; i++ {
		variantID := experiment.Variants[0].ID
		if i >= 3 {
			variantID = experiment.Variants[1].ID
		}
		participant := &types.Participant{
			ExperimentID: experiment.ID,
			UserID:       fmt.Sprintf("user-%d", i),
			VariantID:    variantID,
			AssignedAt:   time.Now().UTC(),
		}
		if err := repo.Create(context.Background(), nil, participant); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	counts, err := repo.CountByVariant(context.Background(), nil, experiment.ID)
	if err != nil {
		t.Fatalf("CountByVariant: %v", err)
	}
	if counts[experiment.Variants[0].ID] != 3 || counts[experiment.Variants[1].ID] != 2 {
		t.Fatalf("counts: %v", counts)
	}
}

func TestEventCountConvertersDistinctUsers(t *testing.T) {
	db := newTestDB(t)
	experimentRepo := NewExperimentRepo(db, newTestLogger(t))
	repo := NewEventRepo(db, newTestLogger(t))
	experiment := seedExperiment(t, db, experimentRepo)
	variantID := experiment.Variants[0].ID

	value := 25.0
	events := []*types.TrackedEvent{
		{ExperimentID: experiment.ID, VariantID: variantID, UserID: "user-1", Name: "purchase", Value: &value},
		{ExperimentID: experiment.ID, VariantID: variantID, UserID: "user-1", Name: "purchase", Value: &value},
		{ExperimentID: experiment.ID, VariantID: variantID, UserID: "user-2", Name: "purchase"},
		{ExperimentID: experiment.ID, VariantID: variantID, UserID: "user-3", Name: "page_view"},
	}
	for i, event := range events {
		event.OccurredAt = time.Now().UTC()
		if err := repo.Create(context.Background(), nil, event); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	counts, err := repo.CountConvertersByVariant(context.Background(), nil, experiment.ID, "purchase")
	if err != nil {
		t.Fatalf("CountConvertersByVariant: %v", err)
	}
	// user-1 fired twice but converts once; page_view does not count.
	if counts[variantID] != 2 {
		t.Fatalf("converters: want=2 got=%d", counts[variantID])
	}

	sums, err := repo.SumValueByVariant(context.Background(), nil, experiment.ID, "purchase")
	if err != nil {
		t.Fatalf("SumValueByVariant: %v", err)
	}
	if sums[variantID] != 50 {
		t.Fatalf("value sum: want=50 got=%v", sums[variantID])
	}
}
