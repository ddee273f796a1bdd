package events

import (
	"context"
	"errors"

	"qrquest/internal/app"
	"qrquest/internal/domain"
)

// Fanout delivers every notification to all of its notifiers. A failing notifier
// does not stop the others; the errors are joined.
type Fanout []app.Notifier

func (f Fanout) RegistrationOccurred(ctx context.Context, p domain.Participant, uniqueCount int) error {
	return f.each(func(n app.Notifier) error { return n.RegistrationOccurred(ctx, p, uniqueCount) })
}

func (f Fanout) PerfectCompletion(ctx context.Context, p domain.Participant, answers []domain.AnswerSummary) error {
	return f.each(func(n app.Notifier) error { return n.PerfectCompletion(ctx, p, answers) })
}

func (f Fanout) QuestClosed(ctx context.Context, summaries []domain.ParticipantSummary) error {
	return f.each(func(n app.Notifier) error { return n.QuestClosed(ctx, summaries) })
}

func (f Fanout) WinnerDrawn(ctx context.Context, p domain.Participant) error {
	return f.each(func(n app.Notifier) error { return n.WinnerDrawn(ctx, p) })
}

func (f Fanout) each(call func(app.Notifier) error) error {
	var errs []error
	for _, n := range f {
		if err := call(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
