package api

import "time"

// EventType identifies a scenario history event.
type EventType string

const (
	EventScenarioStarted   EventType = "scenario.started"
	EventScenarioCompleted EventType = "scenario.completed"
	EventScenarioFailed    EventType = "scenario.failed"

	EventStepStarted   EventType = "step.started"
	EventStepCompleted EventType = "step.completed"
	EventStepFailed    EventType = "step.failed"
	EventStepSkipped   EventType = "step.skipped"
)

// ScenarioEvent is a minimal append-only history record for audit/debugging.
type ScenarioEvent struct {
	ScenarioID string
	At         time.Time
	Type       EventType

	FeatureName  string
	ScenarioName string

	// Step is the main-queue index, -1 for scenario-level events.
	Step int
	Kind string

	// Small, human-oriented details (step title, error string).
	// Keep this low-volume: do NOT dump step values here.
	Detail string
}
