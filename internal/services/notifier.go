package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/experiment-backend/internal/realtime"
	"github.com/yungbote/experiment-backend/internal/realtime/bus"
	"github.com/yungbote/experiment-backend/internal/types"
)

// ExperimentNotifier fans lifecycle and traffic notifications out to
// observers (logging, analytics). Purely observational; the engine never
// depends on delivery and every method tolerates a nil receiver.
type ExperimentNotifier interface {
	ExperimentCreated(experiment *types.Experiment)
	ExperimentStarted(experiment *types.Experiment)
	ExperimentPaused(experiment *types.Experiment)
	ExperimentCompleted(experiment *types.Experiment)
	VariantAssigned(experimentID, variantID uuid.UUID, userID string)
	EventTracked(event *types.TrackedEvent)
}

type busNotifier struct {
	bus bus.Bus
}

func NewBusNotifier(b bus.Bus) ExperimentNotifier {
	return &busNotifier{bus: b}
}

func (n *busNotifier) ExperimentCreated(experiment *types.Experiment) {
	n.publishLifecycle(realtime.EventExperimentCreated, experiment)
}

func (n *busNotifier) ExperimentStarted(experiment *types.Experiment) {
	n.publishLifecycle(realtime.EventExperimentStarted, experiment)
}

func (n *busNotifier) ExperimentPaused(experiment *types.Experiment) {
	n.publishLifecycle(realtime.EventExperimentPaused, experiment)
}

func (n *busNotifier) ExperimentCompleted(experiment *types.Experiment) {
	n.publishLifecycle(realtime.EventExperimentCompleted, experiment)
}

func (n *busNotifier) publishLifecycle(event string, experiment *types.Experiment) {
	if n == nil || n.bus == nil || experiment == nil {
		return
	}
	_ = n.bus.Publish(context.Background(), realtime.Message{
		Channel: experiment.ID.String(),
		Event:   event,
		Data: map[string]any{
			"experiment_id": experiment.ID,
			"name":          experiment.Name,
			"status":        experiment.Status,
		},
	})
}

func (n *busNotifier) VariantAssigned(experimentID, variantID uuid.UUID, userID string) {
	if n == nil || n.bus == nil || experimentID == uuid.Nil {
		return
	}
	_ = n.bus.Publish(context.Background(), realtime.Message{
		Channel: experimentID.String(),
		Event:   realtime.EventVariantAssigned,
		Data: map[string]any{
			"experiment_id": experimentID,
			"variant_id":    variantID,
			"user_id":       userID,
		},
	})
}

func (n *busNotifier) EventTracked(event *types.TrackedEvent) {
	if n == nil || n.bus == nil || event == nil {
		return
	}
	_ = n.bus.Publish(context.Background(), realtime.Message{
		Channel: event.ExperimentID.String(),
		Event:   realtime.EventTracked,
		Data: map[string]any{
			"experiment_id": event.ExperimentID,
			"variant_id":    event.VariantID,
			"name":          event.Name,
		},
	})
}

// NopNotifier is for tests and for wiring the engine without a bus.
type NopNotifier struct{}

func (NopNotifier) ExperimentCreated(*types.Experiment)            {}
func (NopNotifier) ExperimentStarted(*types.Experiment)            {}
func (NopNotifier) ExperimentPaused(*types.Experiment)             {}
func (NopNotifier) ExperimentCompleted(*types.Experiment)          {}
func (NopNotifier) VariantAssigned(uuid.UUID, uuid.UUID, string)   {}
func (NopNotifier) EventTracked(*types.TrackedEvent)               {}
