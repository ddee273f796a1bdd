package app

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"qrquest/internal/domain"
)

// OnAdminCommand runs an operator command such as "/winner" or "/stats@quest_bot".
func (e *Engine) OnAdminCommand(ctx context.Context, identity, command string) ([]domain.Reply, error) {
	if !e.IsOperator(identity) {
		e.metrics.Rejected("permission")
		e.log.WithField("identity", identity).Warn("admin command denied")
		return replies(msgAccessDenied), domain.ErrPermissionDenied
	}

	switch CommandName(command) {
	case "winner":
		return e.drawWinner(ctx)
	case "stats":
		return e.stats(ctx)
	case "results":
		n, err := e.BroadcastResults(ctx)
		if err != nil {
			return e.failure(err)
		}
		return replies(broadcastText(n)), nil
	case "restart":
		s := &session{identity: identity}
		conv := domain.Conversation{State: domain.ConversationAwaitingReboot}
		if err := e.setConversation(ctx, s, conv); err != nil {
			return e.failure(err)
		}
		return []domain.Reply{{Text: msgRestartConfirm, Options: []string{"yes", "no"}}}, nil
	default:
		return replies(msgUnknownCommand), nil
	}
}

// IsAdminCommand reports whether text names one of the operator commands.
func IsAdminCommand(text string) bool {
	if !strings.HasPrefix(strings.TrimSpace(text), "/") {
		return false
	}
	switch CommandName(text) {
	case "winner", "stats", "results", "restart":
		return true
	}
	return false
}

// CommandName extracts "winner" from "/winner@bot arg".
func CommandName(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

func (e *Engine) drawWinner(ctx context.Context) ([]domain.Reply, error) {
	winner, err := e.winners.Select(ctx)
	if errors.Is(err, domain.ErrNoneEligible) {
		return replies(msgNoneEligible), nil
	}
	if err != nil {
		return e.failure(err)
	}

	draw := domain.Draw{ID: uuid.NewString(), ParticipantID: winner.ID, DrawnAt: e.now()}
	if err := e.store.RecordDraw(ctx, draw); err != nil {
		return e.failure(err)
	}
	e.log.WithFields(logrus.Fields{"identity": winner.Identity, "draw_id": draw.ID}).Info("winner drawn")

	e.notify(ctx, "winner", func(ctx context.Context) error {
		return e.notifier.WinnerDrawn(ctx, winner)
	})
	return replies(winnerText(winner)), nil
}

func (e *Engine) stats(ctx context.Context) ([]domain.Reply, error) {
	st, err := e.store.Stats(ctx)
	if err != nil {
		return e.failure(err)
	}
	size, err := e.catalog.Count(ctx)
	if err != nil {
		return e.failure(err)
	}
	return replies(statsText(st, size)), nil
}
