package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"qrquest/internal/app"
	"qrquest/internal/domain"
)

const msgWinnerCongrats = "Congratulations! You won a prize 🎉"

// Notifier delivers quest events over the Bot API: reports go to operators,
// results and prizes go to the participants themselves.
type Notifier struct {
	client    *Client
	operators []string
}

func NewNotifier(client *Client, operators []string) *Notifier {
	return &Notifier{client: client, operators: operators}
}

func (n *Notifier) RegistrationOccurred(ctx context.Context, p domain.Participant, uniqueCount int) error {
	text := fmt.Sprintf("New registration: %s\nTotal participants: %d", app.DisplayHandle(p), uniqueCount)
	return n.toOperators(ctx, text)
}

func (n *Notifier) PerfectCompletion(ctx context.Context, p domain.Participant, answers []domain.AnswerSummary) error {
	header := app.DisplayHandle(p) + " has completed the quest!"
	return n.toOperators(ctx, app.FormatSummary(header, answers, p.CorrectCount, len(answers)))
}

func (n *Notifier) QuestClosed(ctx context.Context, summaries []domain.ParticipantSummary) error {
	var errs []error
	for _, s := range summaries {
		if !isChatID(s.Identity) {
			continue
		}
		header := fmt.Sprintf("Your quest result (%s):", s.DisplayName)
		if err := n.sendText(ctx, s.Identity, app.FormatSummary(header, s.Answers, s.Correct, s.Total)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) WinnerDrawn(ctx context.Context, p domain.Participant) error {
	if !isChatID(p.Identity) {
		return nil
	}
	return n.sendText(ctx, p.Identity, msgWinnerCongrats)
}

func (n *Notifier) toOperators(ctx context.Context, text string) error {
	var errs []error
	for _, id := range n.operators {
		if err := n.sendText(ctx, id, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) sendText(ctx context.Context, identity, text string) error {
	chatID, err := strconv.ParseInt(identity, 10, 64)
	if err != nil {
		return fmt.Errorf("identity %q is not a chat id", identity)
	}
	if err := n.client.SendMessage(ctx, chatID, text, nil); err != nil {
		return fmt.Errorf("send to %s: %w", identity, err)
	}
	return nil
}

// isChatID reports whether identity belongs to a Telegram user rather than another transport.
func isChatID(identity string) bool {
	_, err := strconv.ParseInt(identity, 10, 64)
	return err == nil
}
