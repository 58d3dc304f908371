package amqp

import (
	"encoding/json"
	"time"

	"stepledger/internal/core"
)

// StepDeltaMessage is one pedometer report: the steps counted since the
// previous report. Device bridges publish these to the delta queue.
type StepDeltaMessage struct {
	Steps     int64     `json:"steps"`
	Timestamp time.Time `json:"timestamp"`
}

// NewStepDeltaMessage creates a delta message stamped with the current time.
func NewStepDeltaMessage(steps int64) *StepDeltaMessage {
	return &StepDeltaMessage{
		Steps:     steps,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *StepDeltaMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// StepDeltaMessageFromJSON creates a message from JSON bytes
func StepDeltaMessageFromJSON(data []byte) (*StepDeltaMessage, error) {
	var msg StepDeltaMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GoalReachedMessage announces that today's total crossed the daily
// goal. Published at most once per calendar date.
type GoalReachedMessage struct {
	Date      core.DayKey `json:"date"`
	Steps     int64       `json:"steps"`
	Goal      int64       `json:"goal"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewGoalReachedMessage creates a goal event stamped with the current time.
func NewGoalReachedMessage(date core.DayKey, steps, goal int64) *GoalReachedMessage {
	return &GoalReachedMessage{
		Date:      date,
		Steps:     steps,
		Goal:      goal,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *GoalReachedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// GoalReachedMessageFromJSON creates a message from JSON bytes
func GoalReachedMessageFromJSON(data []byte) (*GoalReachedMessage, error) {
	var msg GoalReachedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
