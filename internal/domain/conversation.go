package domain

// ConversationState is the persisted part of a participant's dialogue with the bot.
// Everything else (registered, finished) is derived from the ledger.
type ConversationState string

const (
	ConversationNone           ConversationState = ""
	ConversationAwaitingLogin  ConversationState = "awaiting_login"
	ConversationAwaitingAnswer ConversationState = "awaiting_answer"
	ConversationAwaitingReboot ConversationState = "awaiting_restart_confirm"
)

// Conversation holds the pending question for the awaiting states.
type Conversation struct {
	State      ConversationState `json:"state"`
	QuestionID string            `json:"questionId,omitempty"`
}
