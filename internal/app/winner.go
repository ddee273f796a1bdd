package app

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"qrquest/internal/domain"
)

// WinnerSelector draws one participant uniformly among those who answered every question.
type WinnerSelector struct {
	store   Store
	catalog Catalog

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewWinnerSelector(store Store, catalog Catalog, rnd *rand.Rand) *WinnerSelector {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &WinnerSelector{store: store, catalog: catalog, rnd: rnd}
}

// Select returns a random eligible participant or domain.ErrNoneEligible.
// It never mutates completion state; repeated calls may return different winners.
func (w *WinnerSelector) Select(ctx context.Context) (domain.Participant, error) {
	size, err := w.catalog.Count(ctx)
	if err != nil {
		return domain.Participant{}, err
	}
	eligible, err := w.store.Eligible(ctx, size)
	if err != nil {
		return domain.Participant{}, err
	}
	if len(eligible) == 0 {
		return domain.Participant{}, domain.ErrNoneEligible
	}

	w.mu.Lock()
	i := w.rnd.Intn(len(eligible))
	w.mu.Unlock()
	return eligible[i], nil
}
