package events

import (
	"time"

	"github.com/google/uuid"

	"qrquest/internal/domain"
)

// EventType doubles as the routing key on the topic exchange.
type EventType string

const (
	EventRegistration      EventType = "quest.participant.registered"
	EventPerfectCompletion EventType = "quest.participant.perfect"
	EventQuestClosed       EventType = "quest.closed"
	EventWinnerDrawn       EventType = "quest.winner.drawn"
)

// Event is the JSON envelope published for every quest event.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

type participantPayload struct {
	Identity     string `json:"identity"`
	DisplayName  string `json:"displayName"`
	Nickname     string `json:"nickname,omitempty"`
	CorrectCount int    `json:"correctCount"`
	Rank         *int   `json:"rank,omitempty"`
}

type registrationPayload struct {
	Participant participantPayload `json:"participant"`
	UniqueCount int                `json:"uniqueCount"`
}

type completionPayload struct {
	Participant participantPayload     `json:"participant"`
	Answers     []domain.AnswerSummary `json:"answers"`
}

type closedPayload struct {
	Participants []domain.ParticipantSummary `json:"participants"`
}

func newEvent(t EventType, now time.Time, payload any) Event {
	return Event{ID: uuid.NewString(), Type: t, OccurredAt: now.UTC(), Payload: payload}
}

func toParticipant(p domain.Participant) participantPayload {
	return participantPayload{
		Identity:     p.Identity,
		DisplayName:  p.DisplayName,
		Nickname:     p.Nickname,
		CorrectCount: p.CorrectCount,
		Rank:         p.CompletionRank,
	}
}
