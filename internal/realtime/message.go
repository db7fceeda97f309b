package realtime

// Event names carried on the experiment bus. Consumers are observational
// only: nothing in assignment or tracking depends on delivery.
const (
	EventExperimentCreated   = "experiment.created"
	EventExperimentStarted   = "experiment.started"
	EventExperimentPaused    = "experiment.paused"
	EventExperimentCompleted = "experiment.completed"
	EventVariantAssigned     = "experiment.assigned"
	EventTracked             = "experiment.event_tracked"
)

// Message is one bus notification. Channel is the experiment id.
type Message struct {
	Channel string         `json:"channel"`
	Event   string         `json:"event"`
	Data    map[string]any `json:"data,omitempty"`
}
