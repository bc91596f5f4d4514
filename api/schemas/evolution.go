package schemas

import "time"

// -- Evolution Schemas --

// TriggerKind names what pushed a generation or remediation cycle to run.
type TriggerKind string

const (
	TriggerInitial     TriggerKind = "initial"
	TriggerError       TriggerKind = "error"
	TriggerLogAnalysis TriggerKind = "log-analysis"
	TriggerManual      TriggerKind = "manual"
)

// CycleResult is the terminal state of one evolution cycle.
type CycleResult string

const (
	CycleSuccess CycleResult = "success"
	CycleFailure CycleResult = "failure"
)

// ChangedFile records one file touched during a cycle and why.
type ChangedFile struct {
	Path   string `json:"path"`
	Action string `json:"action"` // "created", "modified", "unchanged"
	Reason string `json:"reason,omitempty"`
}

// EvolutionCycle is one complete generate/validate/correct-or-restart
// iteration. Records are append-only and never mutated after creation; the
// monitor persists the history to disk after every cycle.
type EvolutionCycle struct {
	Cycle        int           `json:"cycle"`
	ID           string        `json:"id"`
	Timestamp    time.Time     `json:"timestamp"`
	Trigger      TriggerKind   `json:"trigger"`
	ChangedFiles []ChangedFile `json:"changedFiles,omitempty"`
	Result       CycleResult   `json:"result"`
	LogExcerpt   []string      `json:"logExcerpt,omitempty"`
}

// ServiceStatus is the continuously updated view of the supervised child
// process. The HealthMonitor owns and mutates it.
type ServiceStatus struct {
	Running       bool      `json:"running"`
	PID           int       `json:"pid,omitempty"`
	Port          int       `json:"port"`
	Healthy       bool      `json:"healthy"`
	LastCheckedAt time.Time `json:"lastCheckedAt"`
}
