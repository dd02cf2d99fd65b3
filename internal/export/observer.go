package export

import "time"

// Phase is a step of the rebuild pipeline.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseCollecting Phase = "collecting"
	PhaseBuilding   Phase = "building"
	PhasePackaging  Phase = "packaging"
	PhasePublishing Phase = "publishing"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

// Event reports a phase transition of one rebuild run.
type Event struct {
	PeriodID string    `json:"periodId"`
	RunID    string    `json:"runId"`
	Phase    Phase     `json:"phase"`
	Rows     int       `json:"rows,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Observer receives rebuild events. Implementations must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(e Event) { f(e) }
