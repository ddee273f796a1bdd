package app

import (
	"context"

	"qrquest/internal/domain"
)

// Store abstracts the transactional ledger (in-memory, Postgres).
// Uniqueness of identities, (participant, question) answers and completion ranks
// must be enforced by the store itself.
type Store interface {
	Participant(ctx context.Context, identity string) (domain.Participant, error)
	// Register inserts p unless the identity already exists; created reports which happened.
	Register(ctx context.Context, p domain.Participant) (domain.Participant, bool, error)
	CountParticipants(ctx context.Context) (int, error)
	Participants(ctx context.Context) ([]domain.Participant, error)
	HasAnswer(ctx context.Context, participantID int64, questionID string) (bool, error)
	// RecordAnswer atomically checks for a duplicate, inserts the answer, updates the
	// participant's counters and assigns the completion rank once answered == catalogSize.
	// A duplicate yields a *domain.Rejection; a lost race yields domain.ErrStorageConflict.
	RecordAnswer(ctx context.Context, answer domain.Answer, catalogSize int) (domain.AnswerResult, error)
	// Answers returns the participant's answers ordered by answer time.
	Answers(ctx context.Context, participantID int64) ([]domain.Answer, error)
	// Eligible lists participants with exactly catalogSize answers.
	Eligible(ctx context.Context, catalogSize int) ([]domain.Participant, error)
	RecordDraw(ctx context.Context, draw domain.Draw) error
	Stats(ctx context.Context) (domain.Stats, error)
}

// Catalog serves the immutable question set of a quest run.
type Catalog interface {
	Question(ctx context.Context, id string) (domain.Question, error)
	Count(ctx context.Context) (int, error)
	IDs(ctx context.Context) ([]string, error)
}

// StateStore persists conversation state per identity (in-memory, Redis).
type StateStore interface {
	Get(ctx context.Context, identity string) (domain.Conversation, error)
	Set(ctx context.Context, identity string, conv domain.Conversation) error
	Clear(ctx context.Context, identity string) error
}

// Notifier delivers operator and participant notifications. Calls are best-effort:
// the engine logs failures and never rolls anything back because of them.
type Notifier interface {
	RegistrationOccurred(ctx context.Context, p domain.Participant, uniqueCount int) error
	PerfectCompletion(ctx context.Context, p domain.Participant, answers []domain.AnswerSummary) error
	QuestClosed(ctx context.Context, summaries []domain.ParticipantSummary) error
	WinnerDrawn(ctx context.Context, p domain.Participant) error
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) RegistrationOccurred(context.Context, domain.Participant, int) error { return nil }
func (NopNotifier) PerfectCompletion(context.Context, domain.Participant, []domain.AnswerSummary) error {
	return nil
}
func (NopNotifier) QuestClosed(context.Context, []domain.ParticipantSummary) error { return nil }
func (NopNotifier) WinnerDrawn(context.Context, domain.Participant) error          { return nil }
