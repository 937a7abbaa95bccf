package enums

import "fmt"

// InterviewStatus tracks an interview session through its lifecycle.
//
// created -> used -> recording -> ending -> completed, with created -> failed
// on egress start failure or expiry. completed and failed are terminal.
type InterviewStatus string

const (
	InterviewStatusCreated   InterviewStatus = "created"
	InterviewStatusUsed      InterviewStatus = "used"
	InterviewStatusRecording InterviewStatus = "recording"
	InterviewStatusEnding    InterviewStatus = "ending"
	InterviewStatusCompleted InterviewStatus = "completed"
	InterviewStatusFailed    InterviewStatus = "failed"
)

var validInterviewStatuses = []InterviewStatus{
	InterviewStatusCreated,
	InterviewStatusUsed,
	InterviewStatusRecording,
	InterviewStatusEnding,
	InterviewStatusCompleted,
	InterviewStatusFailed,
}

// ActiveInterviewStatuses are the statuses that count against the
// organization's concurrency cap.
var ActiveInterviewStatuses = []InterviewStatus{
	InterviewStatusUsed,
	InterviewStatusRecording,
	InterviewStatusEnding,
}

// String implements fmt.Stringer.
func (s InterviewStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s InterviewStatus) IsValid() bool {
	for _, candidate := range validInterviewStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition may leave this status.
func (s InterviewStatus) IsTerminal() bool {
	return s == InterviewStatusCompleted || s == InterviewStatusFailed
}

// IsActive reports whether the status holds a concurrency slot.
func (s InterviewStatus) IsActive() bool {
	for _, candidate := range ActiveInterviewStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseInterviewStatus converts raw input into an InterviewStatus.
func ParseInterviewStatus(value string) (InterviewStatus, error) {
	for _, candidate := range validInterviewStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid interview status %q", value)
}
