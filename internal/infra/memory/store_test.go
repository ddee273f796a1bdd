package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"qrquest/internal/domain"
)

func TestRegisterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	first, created, err := store.Register(ctx, domain.Participant{Identity: "42", DisplayName: "alice"})
	if err != nil || !created {
		t.Fatalf("expected first registration, created=%v err=%v", created, err)
	}
	again, created, err := store.Register(ctx, domain.Participant{Identity: "42", DisplayName: "mallory"})
	if err != nil || created {
		t.Fatalf("expected no-op registration, created=%v err=%v", created, err)
	}
	if again.ID != first.ID || again.DisplayName != "alice" {
		t.Fatalf("expected original participant, got %+v", again)
	}
	if n, _ := store.CountParticipants(ctx); n != 1 {
		t.Fatalf("expected 1 participant, got %d", n)
	}
}

func TestRecordAnswerRejectsConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	p, _, _ := store.Register(ctx, domain.Participant{Identity: "42", DisplayName: "alice"})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		dups     int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.RecordAnswer(ctx, domain.Answer{ParticipantID: p.ID, QuestionID: "q1", Option: "4", Correct: true, AnsweredAt: time.Now()}, 2)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, domain.ErrDuplicate):
				dups++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted != 1 || dups != 19 {
		t.Fatalf("expected 1 accepted and 19 duplicates, got %d/%d", accepted, dups)
	}
	answers, _ := store.Answers(ctx, p.ID)
	if len(answers) != 1 {
		t.Fatalf("expected one persisted answer, got %d", len(answers))
	}
	got, _ := store.Participant(ctx, "42")
	if got.CorrectCount != 1 {
		t.Fatalf("expected correct count 1, got %d", got.CorrectCount)
	}
}

func TestCompletionRanksAreContiguous(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	const players = 12
	questions := []string{"q1", "q2", "q3"}

	ids := make([]int64, players)
	for i := range ids {
		p, _, _ := store.Register(ctx, domain.Participant{Identity: string(rune('a' + i))})
		ids[i] = p.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for _, q := range questions {
				if _, err := store.RecordAnswer(ctx, domain.Answer{ParticipantID: id, QuestionID: q, Option: "x"}, len(questions)); err != nil {
					t.Errorf("record: %v", err)
				}
			}
		}(id)
	}
	wg.Wait()

	seen := make(map[int]bool)
	participants, _ := store.Participants(ctx)
	for _, p := range participants {
		if p.CompletionRank == nil {
			t.Fatalf("participant %d not ranked", p.ID)
		}
		seen[*p.CompletionRank] = true
	}
	for rank := 1; rank <= players; rank++ {
		if !seen[rank] {
			t.Fatalf("rank %d missing from %v", rank, seen)
		}
	}
	if st, _ := store.Stats(ctx); st.Finished != players || st.Answers != players*len(questions) {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestEligibleIgnoresCorrectness(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	done, _, _ := store.Register(ctx, domain.Participant{Identity: "done"})
	partial, _, _ := store.Register(ctx, domain.Participant{Identity: "partial"})

	_, _ = store.RecordAnswer(ctx, domain.Answer{ParticipantID: done.ID, QuestionID: "q1", Correct: false}, 2)
	_, _ = store.RecordAnswer(ctx, domain.Answer{ParticipantID: done.ID, QuestionID: "q2", Correct: false}, 2)
	_, _ = store.RecordAnswer(ctx, domain.Answer{ParticipantID: partial.ID, QuestionID: "q1", Correct: true}, 2)

	eligible, err := store.Eligible(ctx, 2)
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(eligible) != 1 || eligible[0].Identity != "done" {
		t.Fatalf("expected only the finisher, got %+v", eligible)
	}
}

func TestRecordDrawRequiresParticipant(t *testing.T) {
	store := NewStore()
	err := store.RecordDraw(context.Background(), domain.Draw{ID: "d1", ParticipantID: 99})
	if !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant not found, got %v", err)
	}
}
