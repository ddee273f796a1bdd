package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrquest/internal/app"
	"qrquest/internal/domain"
)

type countingNotifier struct {
	app.NopNotifier
	err     error
	winners int
	closed  int
}

func (n *countingNotifier) WinnerDrawn(context.Context, domain.Participant) error {
	n.winners++
	return n.err
}

func (n *countingNotifier) QuestClosed(context.Context, []domain.ParticipantSummary) error {
	n.closed++
	return n.err
}

func TestFanoutDeliversToEveryNotifier(t *testing.T) {
	boom := errors.New("boom")
	first := &countingNotifier{err: boom}
	second := &countingNotifier{}
	f := Fanout{first, second}

	err := f.WinnerDrawn(context.Background(), domain.Participant{Identity: "1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, first.winners)
	assert.Equal(t, 1, second.winners)

	second.err = errors.New("down")
	err = f.QuestClosed(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "down")
	assert.Equal(t, 1, second.closed)
}

func TestEmptyFanoutIsSilent(t *testing.T) {
	var f Fanout
	assert.NoError(t, f.RegistrationOccurred(context.Background(), domain.Participant{}, 1))
	assert.NoError(t, f.PerfectCompletion(context.Background(), domain.Participant{}, nil))
}
