package memory

import (
	"context"
	"testing"

	"qrquest/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	conv, err := store.Get(ctx, "u1")
	if err != nil || conv.State != domain.ConversationNone {
		t.Fatalf("expected empty conversation, got %+v err=%v", conv, err)
	}

	want := domain.Conversation{State: domain.ConversationAwaitingAnswer, QuestionID: "q1"}
	if err := store.Set(ctx, "u1", want); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := store.Get(ctx, "u1"); got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	if err := store.Clear(ctx, "u1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got, _ := store.Get(ctx, "u1"); got.State != domain.ConversationNone {
		t.Fatalf("expected conversation removed, got %+v", got)
	}
}
