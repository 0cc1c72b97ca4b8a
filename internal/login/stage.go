package login

import "fmt"

// Stage is the position of a login attempt in the handshake.
type Stage int

const (
	StageAwaitingAPIID Stage = iota
	StageAwaitingAPIHash
	StageAwaitingPhone
	StageAwaitingCode
	StageAwaitingSecondFactor
	StageCompleted
	StageFailed
	StageCancelled
)

var stageNames = [...]string{
	StageAwaitingAPIID:        "awaiting_api_id",
	StageAwaitingAPIHash:      "awaiting_api_hash",
	StageAwaitingPhone:        "awaiting_phone",
	StageAwaitingCode:         "awaiting_code",
	StageAwaitingSecondFactor: "awaiting_second_factor",
	StageCompleted:            "completed",
	StageFailed:               "failed",
	StageCancelled:            "cancelled",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Terminal reports whether the attempt is over.
func (s Stage) Terminal() bool { return s >= StageCompleted }

// Connected reports whether a live backend connection belongs to this stage.
func (s Stage) Connected() bool {
	return s == StageAwaitingCode || s == StageAwaitingSecondFactor
}

// Outcome says what a single event did to the attempt.
type Outcome int

const (
	// OutcomeAdvanced: moved to the next non-terminal stage.
	OutcomeAdvanced Outcome = iota
	// OutcomeInvalidInput: malformed input, stage unchanged.
	OutcomeInvalidInput
	// OutcomeRetry: transient backend failure, stage unchanged.
	OutcomeRetry
	OutcomeCompleted
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdvanced:
		return "advanced"
	case OutcomeInvalidInput:
		return "invalid_input"
	case OutcomeRetry:
		return "retry"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}
