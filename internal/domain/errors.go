package domain

import "errors"

var (
	// ErrValidation marks input that names an unknown question or option.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate marks a repeated scan or answer; it is informational.
	ErrDuplicate = errors.New("duplicate request")
	// ErrQuestClosed is returned by every mutating operation after the deadline.
	ErrQuestClosed = errors.New("quest closed")
	// ErrPermissionDenied is returned when a non-operator runs an admin command.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrDelivery wraps outbound notification failures.
	ErrDelivery = errors.New("delivery failed")
	// ErrStorageConflict indicates a concurrent write lost a serialization race.
	ErrStorageConflict = errors.New("storage conflict")
	// ErrParticipantNotFound is returned when an identity has not registered yet.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrQuestionNotFound indicates the catalog has no such question.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidQuestion rejects catalog entries without options or with a foreign correct option.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrNoneEligible is returned by the winner draw when nobody finished.
	ErrNoneEligible = errors.New("no eligible participants")
)

// RejectReason tags why the ledger refused an answer.
type RejectReason string

const (
	ReasonUnknownQuestion RejectReason = "unknown_question"
	ReasonInvalidOption   RejectReason = "invalid_option"
	ReasonDuplicateAnswer RejectReason = "duplicate_answer"
)

// Rejection is returned by the answer ledger when a precondition fails.
// Nothing is written when a Rejection is returned.
type Rejection struct {
	Reason RejectReason
}

func Reject(reason RejectReason) *Rejection {
	return &Rejection{Reason: reason}
}

func (r *Rejection) Error() string {
	return "answer rejected: " + string(r.Reason)
}

// Unwrap classifies the rejection as a validation or duplicate error.
func (r *Rejection) Unwrap() error {
	if r.Reason == ReasonDuplicateAnswer {
		return ErrDuplicate
	}
	return ErrValidation
}

// IsRejected extracts the reject reason from err, if any.
func IsRejected(err error) (RejectReason, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason, true
	}
	return "", false
}
