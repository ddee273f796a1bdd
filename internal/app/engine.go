package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"qrquest/internal/domain"
	"qrquest/internal/metrics"
)

// Options tune the engine; the zero value is usable.
type Options struct {
	Operators []string
	Logger    logrus.FieldLogger
	Metrics   *metrics.Metrics
	Rand      *rand.Rand
	Now       func() time.Time
}

// Engine drives the quest: progression FSM, answer ledger, ranking, winner draws and admin commands.
type Engine struct {
	store     Store
	catalog   Catalog
	states    StateStore
	notifier  Notifier
	clock     *QuestClock
	ledger    *Ledger
	winners   *WinnerSelector
	operators map[string]struct{}
	log       logrus.FieldLogger
	metrics   *metrics.Metrics
	now       func() time.Time
	table     map[State]map[Event]action

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

func NewEngine(store Store, catalog Catalog, states StateStore, notifier Notifier, clock *QuestClock, opts Options) *Engine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if opts.Logger == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		opts.Logger = logger
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ledger := NewLedger(store, catalog, clock, opts.Metrics)
	ledger.now = opts.Now

	operators := make(map[string]struct{}, len(opts.Operators))
	for _, id := range opts.Operators {
		if id = strings.TrimSpace(id); id != "" {
			operators[id] = struct{}{}
		}
	}

	e := &Engine{
		store:     store,
		catalog:   catalog,
		states:    states,
		notifier:  notifier,
		clock:     clock,
		ledger:    ledger,
		winners:   NewWinnerSelector(store, catalog, opts.Rand),
		operators: operators,
		log:       opts.Logger.WithField("component", "engine"),
		metrics:   opts.Metrics,
		now:       opts.Now,
		shutdown:  make(chan struct{}),
	}
	e.table = e.transitions()
	return e
}

// OnScan handles a QR scan (a /start deep link) carrying questionID, which may be empty.
// The returned replies are always renderable, even when err is non-nil.
func (e *Engine) OnScan(ctx context.Context, identity, nickname, questionID string) ([]domain.Reply, error) {
	return e.dispatch(ctx, identity, nickname, input{event: EventScan, questionID: strings.TrimSpace(questionID)}, "")
}

// OnText routes free text to login or answer handling based on the conversation state.
func (e *Engine) OnText(ctx context.Context, identity, nickname, text string) ([]domain.Reply, error) {
	return e.dispatch(ctx, identity, nickname, input{event: EventText, text: text}, "")
}

// OnLoginText handles text sent while the bot waits for a login.
func (e *Engine) OnLoginText(ctx context.Context, identity, nickname, text string) ([]domain.Reply, error) {
	return e.dispatch(ctx, identity, nickname, input{event: EventText, text: text}, StateAwaitingLogin)
}

// OnAnswerText handles an option submitted for the pending question.
func (e *Engine) OnAnswerText(ctx context.Context, identity, text string) ([]domain.Reply, error) {
	return e.dispatch(ctx, identity, "", input{event: EventText, text: text}, StateAwaitingAnswer)
}

// IsOperator reports whether identity may run admin commands.
func (e *Engine) IsOperator(identity string) bool {
	_, ok := e.operators[identity]
	return ok
}

// Operators lists the configured operator identities.
func (e *Engine) Operators() []string {
	out := make([]string, 0, len(e.operators))
	for id := range e.operators {
		out = append(out, id)
	}
	return out
}

// ShutdownRequested is closed once an operator confirms a restart.
func (e *Engine) ShutdownRequested() <-chan struct{} {
	return e.shutdown
}

func (e *Engine) requestShutdown() {
	e.shutdownOnce.Do(func() { close(e.shutdown) })
}

// IsUserError reports whether err is an expected, participant-facing outcome
// rather than an infrastructure failure.
func IsUserError(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrDuplicate) ||
		errors.Is(err, domain.ErrQuestClosed) ||
		errors.Is(err, domain.ErrPermissionDenied)
}

func (e *Engine) dispatch(ctx context.Context, identity, nickname string, in input, expect State) ([]domain.Reply, error) {
	s, err := e.load(ctx, identity, nickname)
	if err != nil {
		return e.failure(err)
	}
	if expect != "" && s.state != expect && s.state != StateQuestClosed {
		return replies(hintFor(s.state)), nil
	}
	act, ok := e.table[s.state][in.event]
	if !ok {
		return replies(hintFor(s.state)), nil
	}
	return act(ctx, s, in)
}

func (e *Engine) load(ctx context.Context, identity, nickname string) (*session, error) {
	conv, err := e.states.Get(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	s := &session{identity: identity, nickname: nickname, conv: conv}

	p, err := e.store.Participant(ctx, identity)
	switch {
	case err == nil:
		s.participant = p
		s.registered = true
	case errors.Is(err, domain.ErrParticipantNotFound):
	default:
		return nil, fmt.Errorf("load participant: %w", err)
	}
	s.state = deriveState(s, e.clock.IsActive())
	return s, nil
}

func (e *Engine) setConversation(ctx context.Context, s *session, conv domain.Conversation) error {
	if err := e.states.Set(ctx, s.identity, conv); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	s.conv = conv
	return nil
}

func (e *Engine) clearConversation(ctx context.Context, s *session) error {
	if err := e.states.Clear(ctx, s.identity); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	s.conv = domain.Conversation{}
	return nil
}

// notify runs a best-effort delivery; failures are logged and counted only.
func (e *Engine) notify(ctx context.Context, event string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		e.metrics.DeliveryFailed(event)
		e.log.WithError(fmt.Errorf("%w: %v", domain.ErrDelivery, err)).
			WithField("event", event).
			Warn("notification failed")
	}
}

func (e *Engine) failure(err error) ([]domain.Reply, error) {
	if errors.Is(err, domain.ErrStorageConflict) {
		e.metrics.Rejected("storage_conflict")
	}
	return replies(msgTryAgain), err
}

func replies(text string) []domain.Reply {
	return []domain.Reply{{Text: text}}
}

func hintFor(s State) string {
	switch s {
	case StateFinished:
		return msgAlreadyFinished
	case StateQuestClosed:
		return msgQuestClosed
	case StateAwaitingLogin:
		return msgAskLogin
	default:
		return msgScanHint
	}
}
