package telegram

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrquest/internal/domain"
)

func newTestNotifier(t *testing.T, api *fakeAPI, operators ...string) *Notifier {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewNotifier(NewClient(srv.URL, "TOKEN", t.TempDir()), operators)
}

func TestNotifierReportsToOperators(t *testing.T) {
	api := &fakeAPI{}
	n := newTestNotifier(t, api, "100", "200")
	p := domain.Participant{Identity: "42", DisplayName: "alice", Nickname: "alice_tg", CorrectCount: 2}

	require.NoError(t, n.RegistrationOccurred(context.Background(), p, 3))
	require.NoError(t, n.PerfectCompletion(context.Background(), p, []domain.AnswerSummary{
		{QuestionID: "q1", Correct: true},
		{QuestionID: "q2", Correct: true},
	}))

	calls := api.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, "100", calls[0].ChatID)
	assert.Equal(t, "200", calls[1].ChatID)
	assert.Contains(t, calls[0].Text, "alice (@alice_tg)")
	assert.Contains(t, calls[0].Text, "Total participants: 3")
	assert.True(t, strings.HasSuffix(calls[2].Text, "Correct answers: 2 of 2"))
}

func TestNotifierQuestClosedContinuesPastFailures(t *testing.T) {
	api := &fakeAPI{failFor: "13"}
	n := newTestNotifier(t, api)

	err := n.QuestClosed(context.Background(), []domain.ParticipantSummary{
		{Identity: "13", DisplayName: "blocked", Total: 6},
		{Identity: "14", DisplayName: "bob", Correct: 1, Total: 6, Answers: []domain.AnswerSummary{{QuestionID: "q1", Correct: true}}},
		{Identity: "ws:carol", DisplayName: "carol", Total: 6},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked by the user")

	calls := api.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "14", calls[1].ChatID)
	assert.Contains(t, calls[1].Text, "Your quest result (bob)")
	assert.Contains(t, calls[1].Text, "q1: ✅")
}

func TestNotifierCongratulatesWinner(t *testing.T) {
	api := &fakeAPI{}
	n := newTestNotifier(t, api, "100")

	require.NoError(t, n.WinnerDrawn(context.Background(), domain.Participant{Identity: "ws:carol"}))
	require.NoError(t, n.WinnerDrawn(context.Background(), domain.Participant{Identity: "42"}))
	calls := api.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "42", calls[0].ChatID)
	assert.Equal(t, msgWinnerCongrats, calls[0].Text)
}
