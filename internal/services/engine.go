package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/experiment-backend/internal/logger"
	"github.com/yungbote/experiment-backend/internal/repos"
	"github.com/yungbote/experiment-backend/internal/types"
)

const (
	weightSum          = 100.0
	weightSumTolerance = 0.01
	minVariants        = 2
	minConfidence      = 0.80
	maxConfidence      = 0.99
	defaultConfidence  = 0.95
)

// ExperimentEngine is the single owner of variant assignment and result
// computation. It keeps two in-memory maps (active experiments and a
// per-user assignment cache) that shadow the store; neither is
// transactionally linked to it. Other processes self-heal through store
// lookups on cache miss.
type ExperimentEngine struct {
	db              *gorm.DB
	log             *logger.Logger
	experimentRepo  repos.ExperimentRepo
	participantRepo repos.ParticipantRepo
	eventRepo       repos.EventRepo
	notifier        ExperimentNotifier
	now             func() time.Time

	mu          sync.RWMutex
	active      map[uuid.UUID]*types.Experiment
	assignments map[string]map[uuid.UUID]uuid.UUID
}

func NewExperimentEngine(
	db *gorm.DB,
	log *logger.Logger,
	experimentRepo repos.ExperimentRepo,
	participantRepo repos.ParticipantRepo,
	eventRepo repos.EventRepo,
	notifier ExperimentNotifier,
) *ExperimentEngine {
	engineLog := log.With("service", "ExperimentEngine")
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &ExperimentEngine{
		db:              db,
		log:             engineLog,
		experimentRepo:  experimentRepo,
		participantRepo: participantRepo,
		eventRepo:       eventRepo,
		notifier:        notifier,
		now:             time.Now,
		active:          make(map[uuid.UUID]*types.Experiment),
		assignments:     make(map[string]map[uuid.UUID]uuid.UUID),
	}
}

// LoadActiveExperiments repopulates the in-memory active set from storage.
// Called once at startup before the router begins serving.
func (e *ExperimentEngine) LoadActiveExperiments(ctx context.Context) error {
	experiments, err := e.experimentRepo.ListByStatus(ctx, nil, types.ExperimentStatusActive)
	if err != nil {
		return fmt.Errorf("load active experiments: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = make(map[uuid.UUID]*types.Experiment, len(experiments))
	for _, experiment := range experiments {
		e.active[experiment.ID] = experiment
	}
	e.log.Info("Active experiments loaded", "count", len(experiments))
	return nil
}

func (e *ExperimentEngine) CreateExperiment(ctx context.Context, experiment *types.Experiment) (uuid.UUID, error) {
	if experiment == nil {
		return uuid.Nil, &ValidationError{Field: "experiment", Message: "required"}
	}
	if err := e.validateConfig(experiment); err != nil {
		return uuid.Nil, err
	}

	if experiment.Status == "" {
		experiment.Status = types.ExperimentStatusDraft
	}
	for i, variant := range experiment.Variants {
		variant.Position = i
	}
	settings := experiment.Settings.Data()
	if settings.ConfidenceLevel == 0 {
		settings.ConfidenceLevel = defaultConfidence
		experiment.Settings = datatypes.NewJSONType(settings)
	}
	if experiment.Status == types.ExperimentStatusActive && experiment.StartDate == nil {
		now := e.now()
		experiment.StartDate = &now
	}

	if err := e.experimentRepo.Create(ctx, nil, experiment); err != nil {
		return uuid.Nil, fmt.Errorf("create experiment: %w", err)
	}

	if experiment.Status == types.ExperimentStatusActive {
		e.mu.Lock()
		e.active[experiment.ID] = experiment
		e.mu.Unlock()
	}

	e.log.Info("Experiment created", "experiment_id", experiment.ID, "name", experiment.Name, "status", experiment.Status)
	e.notifier.ExperimentCreated(experiment)
	return experiment.ID, nil
}

func (e *ExperimentEngine) validateConfig(experiment *types.Experiment) error {
	if len(experiment.Variants) < minVariants {
		return &ValidationError{Field: "variants", Message: fmt.Sprintf("at least %d variants required", minVariants)}
	}
	var total float64
	for _, variant := range experiment.Variants {
		if variant == nil {
			return &ValidationError{Field: "variants", Message: "variant required"}
		}
		if variant.Weight < 0 || variant.Weight > weightSum {
			return &ValidationError{Field: "variants.weight", Message: "weight must be between 0 and 100"}
		}
		total += variant.Weight
	}
	if math.Abs(total-weightSum) > weightSumTolerance {
		return &ValidationError{Field: "variants.weight", Message: fmt.Sprintf("weights must sum to 100, got %.2f", total)}
	}

	rules := experiment.TargetingRules.Data()
	if rules.Traffic < 0 || rules.Traffic > 100 {
		return &ValidationError{Field: "targeting_rules.traffic", Message: "traffic must be between 0 and 100"}
	}

	settings := experiment.Settings.Data()
	if settings.ConfidenceLevel != 0 && (settings.ConfidenceLevel < minConfidence || settings.ConfidenceLevel > maxConfidence) {
		return &ValidationError{Field: "settings.confidence_level", Message: "confidence level must be between 0.80 and 0.99"}
	}
	return nil
}

// StartExperiment moves a draft or paused experiment to active and stamps a
// fresh start date.
func (e *ExperimentEngine) StartExperiment(ctx context.Context, id uuid.UUID) error {
	experiment, err := e.experimentRepo.GetByID(ctx, nil, id)
	if err != nil {
		return err
	}
	if experiment.Status != types.ExperimentStatusDraft && experiment.Status != types.ExperimentStatusPaused {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, experiment.Status, types.ExperimentStatusActive)
	}

	now := e.now()
	if err := e.experimentRepo.UpdateStatus(ctx, nil, id, types.ExperimentStatusActive, &now, nil); err != nil {
		return fmt.Errorf("start experiment: %w", err)
	}
	experiment.Status = types.ExperimentStatusActive
	experiment.StartDate = &now

	e.mu.Lock()
	e.active[experiment.ID] = experiment
	e.mu.Unlock()

	e.log.Info("Experiment started", "experiment_id", id)
	e.notifier.ExperimentStarted(experiment)
	return nil
}

func (e *ExperimentEngine) PauseExperiment(ctx context.Context, id uuid.UUID) error {
	experiment, err := e.experimentRepo.GetByID(ctx, nil, id)
	if err != nil {
		return err
	}
	if experiment.Status != types.ExperimentStatusActive {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, experiment.Status, types.ExperimentStatusPaused)
	}

	if err := e.experimentRepo.UpdateStatus(ctx, nil, id, types.ExperimentStatusPaused, nil, nil); err != nil {
		return fmt.Errorf("pause experiment: %w", err)
	}
	experiment.Status = types.ExperimentStatusPaused

	e.mu.Lock()
	delete(e.active, id)
	e.mu.Unlock()

	e.log.Info("Experiment paused", "experiment_id", id)
	e.notifier.ExperimentPaused(experiment)
	return nil
}

func (e *ExperimentEngine) CompleteExperiment(ctx context.Context, id uuid.UUID) error {
	experiment, err := e.experimentRepo.GetByID(ctx, nil, id)
	if err != nil {
		return err
	}
	if experiment.Status != types.ExperimentStatusActive {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, experiment.Status, types.ExperimentStatusCompleted)
	}

	now := e.now()
	if err := e.experimentRepo.UpdateStatus(ctx, nil, id, types.ExperimentStatusCompleted, nil, &now); err != nil {
		return fmt.Errorf("complete experiment: %w", err)
	}
	experiment.Status = types.ExperimentStatusCompleted
	experiment.EndDate = &now

	e.mu.Lock()
	delete(e.active, id)
	e.mu.Unlock()

	e.log.Info("Experiment completed", "experiment_id", id)
	e.notifier.ExperimentCompleted(experiment)
	return nil
}

func (e *ExperimentEngine) GetExperiment(ctx context.Context, id uuid.UUID) (*types.Experiment, error) {
	return e.experimentRepo.GetByID(ctx, nil, id)
}

func (e *ExperimentEngine) ListExperiments(ctx context.Context, status types.ExperimentStatus) ([]*types.Experiment, error) {
	if status == "" {
		return e.experimentRepo.List(ctx, nil)
	}
	return e.experimentRepo.ListByStatus(ctx, nil, status)
}

// AssignVariant deterministically buckets a user into a variant. It returns
// uuid.Nil when the experiment is not taking traffic, the user fails
// targeting, or the store is unavailable; a page render must never break on
// an assignment failure.
func (e *ExperimentEngine) AssignVariant(ctx context.Context, experimentID uuid.UUID, userID, sessionID string, reqCtx *types.RequestContext) uuid.UUID {
	if experimentID == uuid.Nil || userID == "" {
		return uuid.Nil
	}

	e.mu.RLock()
	experiment, ok := e.active[experimentID]
	e.mu.RUnlock()
	if !ok {
		return uuid.Nil
	}

	now := e.now()
	if !e.withinRunWindow(experiment, now) {
		return uuid.Nil
	}

	// Sticky lookup: cache, then store. A hit short-circuits everything,
	// including targeting, so weight or rule edits never move assigned users.
	if variantID, ok := e.cachedAssignment(userID, experimentID); ok {
		return variantID
	}
	existing, err := e.participantRepo.GetByExperimentAndUser(ctx, nil, experimentID, userID)
	if err != nil {
		e.log.Warn("Assignment lookup failed, treating user as ineligible", "experiment_id", experimentID, "user_id", userID, "error", err)
		return uuid.Nil
	}
	if existing != nil {
		e.cacheAssignment(userID, experimentID, existing.VariantID)
		return existing.VariantID
	}

	if !e.passesTargeting(experiment, userID, reqCtx, now) {
		return uuid.Nil
	}

	variant := selectVariant(experiment, userID)
	if variant == nil {
		e.log.Warn("No variant selectable, experiment has no weighted variants", "experiment_id", experimentID)
		return uuid.Nil
	}

	participant := &types.Participant{
		ExperimentID: experimentID,
		UserID:       userID,
		SessionID:    sessionID,
		VariantID:    variant.ID,
		AssignedAt:   now,
	}
	if reqCtx != nil {
		participant.UserAgent = reqCtx.UserAgent
		participant.IPAddress = reqCtx.IPAddress
		participant.GeoLocation = reqCtx.GeoLocation
		participant.DeviceType = reqCtx.DeviceType
	}

	if err := e.participantRepo.Create(ctx, nil, participant); err != nil {
		if errors.Is(err, repos.ErrDuplicateAssignment) {
			// Lost the race against a concurrent first-time call; the row
			// that won is the assignment.
			winner, lookupErr := e.participantRepo.GetByExperimentAndUser(ctx, nil, experimentID, userID)
			if lookupErr != nil || winner == nil {
				e.log.Warn("Duplicate assignment re-read failed", "experiment_id", experimentID, "user_id", userID, "error", lookupErr)
				return uuid.Nil
			}
			e.cacheAssignment(userID, experimentID, winner.VariantID)
			return winner.VariantID
		}
		e.log.Warn("Assignment write failed, treating user as ineligible", "experiment_id", experimentID, "user_id", userID, "error", err)
		return uuid.Nil
	}

	e.cacheAssignment(userID, experimentID, variant.ID)
	e.notifier.VariantAssigned(experimentID, variant.ID, userID)
	return variant.ID
}

// withinRunWindow treats an active experiment past its end date or max
// duration as no longer taking traffic. Completing it remains an explicit
// administrative action.
func (e *ExperimentEngine) withinRunWindow(experiment *types.Experiment, now time.Time) bool {
	if experiment.EndDate != nil && !now.Before(*experiment.EndDate) {
		return false
	}
	if experiment.MaxDurationDays > 0 && experiment.StartDate != nil {
		limit := experiment.StartDate.AddDate(0, 0, experiment.MaxDurationDays)
		if !now.Before(limit) {
			return false
		}
	}
	return true
}

// passesTargeting evaluates the eligibility rules in order. Rules whose
// required context field is absent are skipped, not failed.
func (e *ExperimentEngine) passesTargeting(experiment *types.Experiment, userID string, reqCtx *types.RequestContext, now time.Time) bool {
	settings := experiment.Settings.Data()
	rules := experiment.TargetingRules.Data()

	userAgent := ""
	deviceType := ""
	geo := ""
	if reqCtx != nil {
		userAgent = reqCtx.UserAgent
		deviceType = reqCtx.DeviceType
		geo = reqCtx.GeoLocation
	}

	if settings.ExcludeBots && isBotUserAgent(userAgent) {
		return false
	}

	// Traffic gate. Derived from the user hash (distinct salt from variant
	// selection) so inclusion is stable across repeated calls before first
	// assignment.
	if bucketValue(experiment.ID, userID, bucketSaltTraffic) >= rules.Traffic {
		return false
	}

	if len(rules.DeviceTypes) > 0 {
		if deviceType == "" {
			deviceType = deviceTypeFromUserAgent(userAgent)
		}
		if deviceType != "" && !containsFold(rules.DeviceTypes, deviceType) {
			return false
		}
	}

	if len(rules.GeoLocations) > 0 && geo != "" && !containsFold(rules.GeoLocations, geo) {
		return false
	}

	if len(rules.TimeWindows) > 0 && !inAnyWindow(rules.TimeWindows, now) {
		return false
	}

	return true
}

// selectVariant walks variants in stored order accumulating weights and picks
// the first whose cumulative weight exceeds the user's hash bucket.
func selectVariant(experiment *types.Experiment, userID string) *types.Variant {
	if len(experiment.Variants) == 0 {
		return nil
	}
	value := bucketValue(experiment.ID, userID, bucketSaltVariant)
	var cumulative float64
	for _, variant := range experiment.Variants {
		cumulative += variant.Weight
		if value < cumulative {
			return variant
		}
	}
	// Weight sum is validated to 100 within tolerance; rounding can leave a
	// sliver at the top of the range.
	return experiment.Variants[len(experiment.Variants)-1]
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}

// inAnyWindow reads each window's start/end as wall-clock times in the
// window's zone: a 09:00-17:00 window zoned America/New_York opens at 09:00
// New York time regardless of how the bounds were serialized. Windows with no
// zone, or an unparseable one, read in UTC.
func inAnyWindow(windows []types.TimeWindow, now time.Time) bool {
	for _, window := range windows {
		loc := time.UTC
		if window.Timezone != "" {
			if parsed, err := time.LoadLocation(window.Timezone); err == nil {
				loc = parsed
			}
		}
		start := rebaseWallClock(window.Start, loc)
		end := rebaseWallClock(window.End, loc)
		if !now.Before(start) && now.Before(end) {
			return true
		}
	}
	return false
}

// rebaseWallClock keeps t's clock reading but re-anchors it in loc.
func rebaseWallClock(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

func (e *ExperimentEngine) cachedAssignment(userID string, experimentID uuid.UUID) (uuid.UUID, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	byExperiment, ok := e.assignments[userID]
	if !ok {
		return uuid.Nil, false
	}
	variantID, ok := byExperiment[experimentID]
	return variantID, ok
}

func (e *ExperimentEngine) cacheAssignment(userID string, experimentID, variantID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	byExperiment, ok := e.assignments[userID]
	if !ok {
		byExperiment = make(map[uuid.UUID]uuid.UUID)
		e.assignments[userID] = byExperiment
	}
	byExperiment[experimentID] = variantID
}

// TrackEvent appends a conversion/interaction record. Fire and forget:
// storage failures are logged and swallowed because event loss only degrades
// reporting fidelity, never assignment correctness.
func (e *ExperimentEngine) TrackEvent(ctx context.Context, event *types.TrackedEvent) {
	if event == nil || event.ExperimentID == uuid.Nil || event.VariantID == uuid.Nil || event.Name == "" {
		e.log.Debug("Dropping malformed tracked event")
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.now()
	}
	if err := e.eventRepo.Create(ctx, nil, event); err != nil {
		e.log.Warn("Event write failed, dropping event", "experiment_id", event.ExperimentID, "event", event.Name, "error", err)
		return
	}
	e.notifier.EventTracked(event)
}

// GetVariantContent is a pure lookup against the active-experiment cache.
func (e *ExperimentEngine) GetVariantContent(experimentID, variantID uuid.UUID) datatypes.JSON {
	e.mu.RLock()
	defer e.mu.RUnlock()
	experiment, ok := e.active[experimentID]
	if !ok {
		return nil
	}
	for _, variant := range experiment.Variants {
		if variant.ID == variantID {
			return variant.Content
		}
	}
	return nil
}
