package app

import (
	"context"
	"fmt"

	"qrquest/internal/domain"
)

// Summary builds the ordered correctness report for one participant.
func (e *Engine) Summary(ctx context.Context, p domain.Participant) (domain.ParticipantSummary, error) {
	size, err := e.catalog.Count(ctx)
	if err != nil {
		return domain.ParticipantSummary{}, err
	}
	answers, err := e.store.Answers(ctx, p.ID)
	if err != nil {
		return domain.ParticipantSummary{}, fmt.Errorf("load answers: %w", err)
	}
	return domain.ParticipantSummary{
		Participant: p,
		Identity:    p.Identity,
		DisplayName: p.DisplayName,
		Answers:     summarize(answers),
		Correct:     p.CorrectCount,
		Total:       size,
	}, nil
}

// Summaries reports on every registered participant.
func (e *Engine) Summaries(ctx context.Context) ([]domain.ParticipantSummary, error) {
	participants, err := e.store.Participants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	out := make([]domain.ParticipantSummary, 0, len(participants))
	for _, p := range participants {
		s, err := e.Summary(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// BroadcastResults sends every participant their final report. Delivery is best-effort.
func (e *Engine) BroadcastResults(ctx context.Context) (int, error) {
	summaries, err := e.Summaries(ctx)
	if err != nil {
		return 0, err
	}
	e.notify(ctx, "quest_closed", func(ctx context.Context) error {
		return e.notifier.QuestClosed(ctx, summaries)
	})
	e.log.WithField("participants", len(summaries)).Info("final results broadcast")
	return len(summaries), nil
}

// RunClock waits for the quest deadline and broadcasts the final results once.
func (e *Engine) RunClock(ctx context.Context) {
	e.clock.Run(ctx, func(ctx context.Context) {
		e.log.WithField("deadline", e.clock.Deadline()).Info("quest deadline reached")
		if _, err := e.BroadcastResults(ctx); err != nil {
			e.log.WithError(err).Error("broadcast final results")
		}
	})
}

func (e *Engine) reportPerfect(ctx context.Context, p domain.Participant) {
	answers, err := e.store.Answers(ctx, p.ID)
	if err != nil {
		e.log.WithError(err).WithField("identity", p.Identity).Warn("load answers for completion report")
		return
	}
	summary := summarize(answers)
	e.notify(ctx, "perfect_completion", func(ctx context.Context) error {
		return e.notifier.PerfectCompletion(ctx, p, summary)
	})
}

func summarize(answers []domain.Answer) []domain.AnswerSummary {
	out := make([]domain.AnswerSummary, 0, len(answers))
	for _, a := range answers {
		out = append(out, domain.AnswerSummary{QuestionID: a.QuestionID, Correct: a.Correct})
	}
	return out
}
