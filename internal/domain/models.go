package domain

import (
	"slices"
	"time"
)

// Participant is a registered quest player.
type Participant struct {
	ID             int64
	Identity       string
	DisplayName    string
	Nickname       string
	RegisteredAt   time.Time
	LastActivityAt time.Time
	CorrectCount   int
	// CompletionRank is nil until every catalog question has been answered.
	CompletionRank *int
}

// Finished reports whether the participant has been ranked.
func (p Participant) Finished() bool {
	return p.CompletionRank != nil
}

// Question models a multiple-choice quest question.
type Question struct {
	ID      string   `json:"id" yaml:"id"`
	Prompt  string   `json:"prompt" yaml:"text"`
	Options []string `json:"options" yaml:"options"`
	Correct string   `json:"correct" yaml:"correct"`
	Media   string   `json:"media,omitempty" yaml:"image,omitempty"`
}

// HasOption reports whether option is one of the question's choices.
func (q Question) HasOption(option string) bool {
	return slices.Contains(q.Options, option)
}

// Validate checks that the question can be served.
func (q Question) Validate() error {
	if q.ID == "" || len(q.Options) == 0 || !q.HasOption(q.Correct) {
		return ErrInvalidQuestion
	}
	return nil
}

// Answer is an immutable ledger entry.
type Answer struct {
	ID            int64
	ParticipantID int64
	QuestionID    string
	Option        string
	Correct       bool
	AnsweredAt    time.Time
}

// AnswerResult summarizes a successfully recorded answer.
type AnswerResult struct {
	Answer      Answer
	Participant Participant
	Answered    int
	CatalogSize int
	// Completed is true only for the answer that assigned the completion rank.
	Completed bool
}

// Perfect reports whether the participant answered the whole catalog correctly.
func (r AnswerResult) Perfect() bool {
	return r.Completed && r.Participant.CorrectCount == r.CatalogSize
}

// Draw records a winner selection.
type Draw struct {
	ID            string
	ParticipantID int64
	DrawnAt       time.Time
}

// AnswerSummary is one line of a participant report.
type AnswerSummary struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
}

// ParticipantSummary is the per-participant final report.
type ParticipantSummary struct {
	Participant Participant     `json:"-"`
	Identity    string          `json:"identity"`
	DisplayName string          `json:"displayName"`
	Answers     []AnswerSummary `json:"answers"`
	Correct     int             `json:"correct"`
	Total       int             `json:"total"`
}

// Stats is an operator-facing snapshot of the quest.
type Stats struct {
	Participants int
	Finished     int
	Answers      int
}

// Reply is a rendering instruction for the chat transport.
type Reply struct {
	Text string `json:"text"`
	// Options are rendered as ordered buttons, one per row.
	Options []string `json:"options,omitempty"`
	Media   string   `json:"media,omitempty"`
	// RemoveKeyboard asks the transport to hide any previously shown option buttons.
	RemoveKeyboard bool `json:"removeKeyboard,omitempty"`
}
