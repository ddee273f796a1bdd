package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"qrquest/internal/domain"
)

// State is a participant's position in the quest progression.
type State string

const (
	StateUnregistered    State = "UNREGISTERED"
	StateAwaitingLogin   State = "AWAITING_LOGIN"
	StateIdle            State = "IDLE"
	StateAwaitingAnswer  State = "AWAITING_ANSWER"
	StateFinished        State = "FINISHED"
	StateQuestClosed     State = "QUEST_CLOSED"
	StateAwaitingRestart State = "AWAITING_RESTART_CONFIRM"
)

// Event is an inbound participant action.
type Event string

const (
	EventScan Event = "scan"
	EventText Event = "text"
)

type input struct {
	event      Event
	questionID string
	text       string
}

type session struct {
	identity    string
	nickname    string
	state       State
	conv        domain.Conversation
	participant domain.Participant
	registered  bool
}

type action func(ctx context.Context, s *session, in input) ([]domain.Reply, error)

// transitions is the state × event table. Actions persist the next state themselves.
func (e *Engine) transitions() map[State]map[Event]action {
	return map[State]map[Event]action{
		StateUnregistered: {
			EventScan: e.askLogin,
			EventText: e.hint(msgScanHint),
		},
		StateAwaitingLogin: {
			EventScan: e.askLogin,
			EventText: e.register,
		},
		StateIdle: {
			EventScan: e.scan,
			EventText: e.hint(msgScanHint),
		},
		StateAwaitingAnswer: {
			EventScan: e.scan,
			EventText: e.answer,
		},
		StateFinished: {
			EventScan: e.finished,
			EventText: e.hint(msgAlreadyFinished),
		},
		StateQuestClosed: {
			EventScan: e.closed,
			EventText: e.closed,
		},
		StateAwaitingRestart: {
			EventScan: e.abandonRestart,
			EventText: e.confirmRestart,
		},
	}
}

// deriveState combines the persisted conversation with ledger facts.
func deriveState(s *session, active bool) State {
	switch {
	case s.conv.State == domain.ConversationAwaitingReboot:
		return StateAwaitingRestart
	case !active:
		return StateQuestClosed
	case !s.registered && s.conv.State == domain.ConversationAwaitingLogin:
		return StateAwaitingLogin
	case !s.registered:
		return StateUnregistered
	case s.participant.Finished():
		return StateFinished
	case s.conv.State == domain.ConversationAwaitingAnswer:
		return StateAwaitingAnswer
	default:
		return StateIdle
	}
}

func (e *Engine) hint(text string) action {
	return func(context.Context, *session, input) ([]domain.Reply, error) {
		return replies(text), nil
	}
}

func (e *Engine) askLogin(ctx context.Context, s *session, in input) ([]domain.Reply, error) {
	if in.questionID == "" {
		if s.state == StateAwaitingLogin {
			return replies(msgAskLogin), nil
		}
		return replies(msgGreeting), nil
	}
	conv := domain.Conversation{State: domain.ConversationAwaitingLogin, QuestionID: in.questionID}
	if err := e.setConversation(ctx, s, conv); err != nil {
		return e.failure(err)
	}
	return replies(msgAskLogin), nil
}

func (e *Engine) register(ctx context.Context, s *session, in input) ([]domain.Reply, error) {
	login := strings.TrimSpace(in.text)
	if login == "" {
		e.metrics.Rejected("empty_login")
		return replies(msgEmptyLogin), fmt.Errorf("%w: empty login", domain.ErrValidation)
	}

	now := e.now()
	p, created, err := e.store.Register(ctx, domain.Participant{
		Identity:       s.identity,
		DisplayName:    login,
		Nickname:       s.nickname,
		RegisteredAt:   now,
		LastActivityAt: now,
	})
	if err != nil {
		return e.failure(err)
	}
	pending := s.conv.QuestionID
	s.participant = p
	s.registered = true
	if err := e.clearConversation(ctx, s); err != nil {
		return e.failure(err)
	}

	var out []domain.Reply
	if created {
		e.metrics.Registration()
		e.log.WithFields(logrus.Fields{"identity": p.Identity, "login": p.DisplayName}).Info("participant registered")
		count, err := e.store.CountParticipants(ctx)
		if err != nil {
			e.log.WithError(err).Warn("count participants")
		} else {
			e.notify(ctx, "registration", func(ctx context.Context) error {
				return e.notifier.RegistrationOccurred(ctx, p, count)
			})
		}
		out = append(out, domain.Reply{Text: welcomeText(p.DisplayName)})
	} else {
		out = append(out, domain.Reply{Text: msgAlreadyRegistered})
	}

	if p.Finished() {
		return append(out, domain.Reply{Text: msgAlreadyFinished}), nil
	}
	if pending == "" {
		return append(out, domain.Reply{Text: msgScanHint}), nil
	}
	next, err := e.present(ctx, s, pending)
	return append(out, next...), err
}

func (e *Engine) scan(ctx context.Context, s *session, in input) ([]domain.Reply, error) {
	if in.questionID == "" {
		return replies(msgGreeting), nil
	}
	return e.present(ctx, s, in.questionID)
}

// present shows a question unless it is unknown or already answered; both leave the state unchanged.
func (e *Engine) present(ctx context.Context, s *session, questionID string) ([]domain.Reply, error) {
	q, err := e.catalog.Question(ctx, questionID)
	if errors.Is(err, domain.ErrQuestionNotFound) {
		e.metrics.Rejected(string(domain.ReasonUnknownQuestion))
		return replies(msgQuestionNotFound), domain.Reject(domain.ReasonUnknownQuestion)
	}
	if err != nil {
		return e.failure(err)
	}

	answered, err := e.store.HasAnswer(ctx, s.participant.ID, q.ID)
	if err != nil {
		return e.failure(err)
	}
	if answered {
		e.metrics.Rejected("duplicate_scan")
		return replies(msgAlreadyScanned), fmt.Errorf("%w: question %s already scanned", domain.ErrDuplicate, q.ID)
	}

	conv := domain.Conversation{State: domain.ConversationAwaitingAnswer, QuestionID: q.ID}
	if err := e.setConversation(ctx, s, conv); err != nil {
		return e.failure(err)
	}
	return []domain.Reply{{Text: q.Prompt, Options: q.Options, Media: q.Media}}, nil
}

func (e *Engine) answer(ctx context.Context, s *session, in input) ([]domain.Reply, error) {
	res, err := e.ledger.RecordAnswer(ctx, s.participant, s.conv.QuestionID, in.text)
	if err != nil {
		return e.answerRejected(ctx, s, err)
	}
	if err := e.clearConversation(ctx, s); err != nil {
		e.log.WithError(err).WithField("identity", s.identity).Warn("answer recorded but conversation not cleared")
	}

	e.log.WithFields(logrus.Fields{
		"identity":    s.identity,
		"question_id": res.Answer.QuestionID,
		"correct":     res.Answer.Correct,
		"answered":    res.Answered,
	}).Info("answer recorded")

	if !res.Completed {
		return []domain.Reply{{Text: msgAnswerAccepted, RemoveKeyboard: true}}, nil
	}

	e.log.WithFields(logrus.Fields{
		"identity": s.identity,
		"rank":     *res.Participant.CompletionRank,
		"correct":  res.Participant.CorrectCount,
	}).Info("participant completed the quest")
	if res.Perfect() {
		e.reportPerfect(ctx, res.Participant)
	}
	return []domain.Reply{{Text: msgQuestFinished, RemoveKeyboard: true}}, nil
}

func (e *Engine) answerRejected(ctx context.Context, s *session, err error) ([]domain.Reply, error) {
	if errors.Is(err, domain.ErrQuestClosed) {
		e.dropConversation(ctx, s)
		return []domain.Reply{{Text: msgAnswersClosed, RemoveKeyboard: true}}, err
	}

	reason, rejected := domain.IsRejected(err)
	if !rejected {
		return e.failure(err)
	}
	e.metrics.Rejected(string(reason))

	switch reason {
	case domain.ReasonInvalidOption:
		// state is kept so the participant can pick again
		return replies(msgInvalidOption), err
	case domain.ReasonUnknownQuestion:
		e.dropConversation(ctx, s)
		return []domain.Reply{{Text: msgQuestionNotFound, RemoveKeyboard: true}}, err
	default:
		e.dropConversation(ctx, s)
		return []domain.Reply{{Text: msgAlreadyAnswered, RemoveKeyboard: true}}, err
	}
}

// dropConversation clears the pending question after a rejected answer, logging storage failures.
func (e *Engine) dropConversation(ctx context.Context, s *session) {
	if err := e.clearConversation(ctx, s); err != nil {
		e.log.WithError(err).WithField("identity", s.identity).Warn("answer rejected but conversation not cleared")
	}
}

func (e *Engine) finished(context.Context, *session, input) ([]domain.Reply, error) {
	return replies(msgAlreadyFinished), fmt.Errorf("%w: quest already finished", domain.ErrDuplicate)
}

func (e *Engine) closed(ctx context.Context, s *session, in input) ([]domain.Reply, error) {
	text := msgQuestClosed
	if in.event == EventText && s.conv.State == domain.ConversationAwaitingAnswer {
		text = msgAnswersClosed
	}
	if s.conv.State != domain.ConversationNone {
		if err := e.clearConversation(ctx, s); err != nil {
			e.log.WithError(err).Warn("clear conversation after deadline")
		}
	}
	e.metrics.Rejected("quest_closed")
	return []domain.Reply{{Text: text, RemoveKeyboard: true}}, domain.ErrQuestClosed
}

func (e *Engine) confirmRestart(ctx context.Context, s *session, in input) ([]domain.Reply, error) {
	switch {
	case isYes(in.text):
		if err := e.clearConversation(ctx, s); err != nil {
			return e.failure(err)
		}
		e.log.WithField("identity", s.identity).Warn("restart requested by operator")
		e.requestShutdown()
		return []domain.Reply{{Text: msgRestarting, RemoveKeyboard: true}}, nil
	case isNo(in.text):
		if err := e.clearConversation(ctx, s); err != nil {
			return e.failure(err)
		}
		return []domain.Reply{{Text: msgRestartCancelled, RemoveKeyboard: true}}, nil
	default:
		return []domain.Reply{{Text: msgRestartRetry, Options: []string{"yes", "no"}}}, nil
	}
}

// abandonRestart drops a pending restart confirmation and handles the scan normally.
func (e *Engine) abandonRestart(ctx context.Context, s *session, in input) ([]domain.Reply, error) {
	if err := e.clearConversation(ctx, s); err != nil {
		return e.failure(err)
	}
	s.state = deriveState(s, e.clock.IsActive())
	return e.table[s.state][in.event](ctx, s, in)
}
