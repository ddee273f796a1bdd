package app

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"qrquest/internal/domain"
	"qrquest/internal/metrics"
)

const defaultConflictRetries = 3

// Ledger validates answers against the catalog and records them in the store,
// retrying transactions that lost a serialization race.
type Ledger struct {
	store   Store
	catalog Catalog
	clock   *QuestClock
	metrics *metrics.Metrics
	now     func() time.Time
	retries uint64
}

func NewLedger(store Store, catalog Catalog, clock *QuestClock, m *metrics.Metrics) *Ledger {
	return &Ledger{
		store:   store,
		catalog: catalog,
		clock:   clock,
		metrics: m,
		now:     time.Now,
		retries: defaultConflictRetries,
	}
}

// RecordAnswer enforces the ledger preconditions (known question, valid option, no prior
// answer) and persists the answer. Precondition failures return a *domain.Rejection.
func (l *Ledger) RecordAnswer(ctx context.Context, p domain.Participant, questionID, option string) (domain.AnswerResult, error) {
	if !l.clock.IsActive() {
		return domain.AnswerResult{}, domain.ErrQuestClosed
	}

	question, err := l.catalog.Question(ctx, questionID)
	if errors.Is(err, domain.ErrQuestionNotFound) {
		return domain.AnswerResult{}, domain.Reject(domain.ReasonUnknownQuestion)
	}
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if !question.HasOption(option) {
		return domain.AnswerResult{}, domain.Reject(domain.ReasonInvalidOption)
	}

	size, err := l.catalog.Count(ctx)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	answer := domain.Answer{
		ParticipantID: p.ID,
		QuestionID:    question.ID,
		Option:        option,
		Correct:       option == question.Correct,
		AnsweredAt:    l.now(),
	}

	var result domain.AnswerResult
	op := func() error {
		if !l.clock.IsActive() {
			return backoff.Permanent(domain.ErrQuestClosed)
		}
		res, err := l.store.RecordAnswer(ctx, answer, size)
		if errors.Is(err, domain.ErrStorageConflict) {
			l.metrics.Conflict()
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(conflictBackOff(), l.retries), ctx)); err != nil {
		return domain.AnswerResult{}, err
	}

	l.metrics.Answer(result.Answer.Correct)
	if result.Completed {
		l.metrics.Completion()
	}
	return result, nil
}

func conflictBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	return b
}
