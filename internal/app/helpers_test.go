package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qrquest/internal/app"
	"qrquest/internal/domain"
	"qrquest/internal/infra/memory"
)

const operatorID = "900"

type fakeTime struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

type recordingNotifier struct {
	mu            sync.Mutex
	fail          bool
	registrations []int
	perfect       []domain.Participant
	perfectReport [][]domain.AnswerSummary
	closed        [][]domain.ParticipantSummary
	winners       []domain.Participant
}

func (n *recordingNotifier) RegistrationOccurred(_ context.Context, _ domain.Participant, count int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.registrations = append(n.registrations, count)
	return n.err()
}

func (n *recordingNotifier) PerfectCompletion(_ context.Context, p domain.Participant, answers []domain.AnswerSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.perfect = append(n.perfect, p)
	n.perfectReport = append(n.perfectReport, answers)
	return n.err()
}

func (n *recordingNotifier) QuestClosed(_ context.Context, summaries []domain.ParticipantSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = append(n.closed, summaries)
	return n.err()
}

func (n *recordingNotifier) WinnerDrawn(_ context.Context, p domain.Participant) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.winners = append(n.winners, p)
	return n.err()
}

func (n *recordingNotifier) err() error {
	if n.fail {
		return errors.New("chat unreachable")
	}
	return nil
}

type fixture struct {
	engine   *app.Engine
	store    *memory.Store
	states   *memory.SessionStore
	catalog  *memory.CatalogRepository
	clock    *app.QuestClock
	notifier *recordingNotifier
	time     *fakeTime
}

func newFixture(t *testing.T, questions []domain.Question) *fixture {
	t.Helper()
	return newFixtureWithStore(t, questions, nil)
}

// newFixtureWithStore lets a test wrap the memory store, e.g. to inject conflicts.
func newFixtureWithStore(t *testing.T, questions []domain.Question, wrap func(*memory.Store) app.Store) *fixture {
	t.Helper()
	ft := &fakeTime{now: time.Date(2025, 5, 21, 18, 0, 0, 0, time.UTC)}
	f := &fixture{
		store:    memory.NewStore(),
		states:   memory.NewSessionStore(),
		catalog:  memory.NewCatalogRepository(memory.NewStaticCatalogLoader(questions), 0),
		notifier: &recordingNotifier{},
		time:     ft,
	}
	f.clock = app.NewQuestClockWithNow(ft.Now().Add(time.Hour), ft.Now)

	var store app.Store = f.store
	if wrap != nil {
		store = wrap(f.store)
	}
	f.engine = app.NewEngine(store, f.catalog, f.states, f.notifier, f.clock, app.Options{
		Operators: []string{operatorID},
		Now:       ft.Now,
	})
	return f
}

// join registers identity through the scan + login flow, leaving it awaiting questionID.
func (f *fixture) join(t *testing.T, identity, login, questionID string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.engine.OnScan(ctx, identity, login+"_tg", questionID)
	require.NoError(t, err, "scan")
	_, err = f.engine.OnLoginText(ctx, identity, login+"_tg", login)
	require.NoError(t, err, "login")
}

// answerAll scans and answers every question with pick(question).
func (f *fixture) answerAll(t *testing.T, identity string, questions []domain.Question, pick func(domain.Question) string) []domain.Reply {
	t.Helper()
	ctx := context.Background()
	var last []domain.Reply
	for _, q := range questions {
		conv, _ := f.states.Get(ctx, identity)
		if conv.QuestionID != q.ID {
			_, err := f.engine.OnScan(ctx, identity, "", q.ID)
			require.NoError(t, err, "scan %s", q.ID)
		}
		replies, err := f.engine.OnAnswerText(ctx, identity, pick(q))
		require.NoError(t, err, "answer %s", q.ID)
		last = replies
	}
	return last
}

func correct(q domain.Question) string { return q.Correct }

func wrong(q domain.Question) string {
	for _, o := range q.Options {
		if o != q.Correct {
			return o
		}
	}
	return q.Correct
}

func catalogOf(n int) []domain.Question {
	out := make([]domain.Question, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, domain.Question{
			ID:      fmt.Sprintf("q%d", i),
			Prompt:  fmt.Sprintf("Question %d?", i),
			Options: []string{"left", "right"},
			Correct: "left",
		})
	}
	return out
}

func lastText(replies []domain.Reply) string {
	if len(replies) == 0 {
		return ""
	}
	return replies[len(replies)-1].Text
}
