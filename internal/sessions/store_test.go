package sessions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nexuscore/agentrt/pkg/models"
)

func TestGetOrCreateSeedsSystemMessage(t *testing.T) {
	store := NewMemoryStore()
	sess, err := store.GetOrCreate(context.Background(), "echo", "reply OK")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if len(sess.History) != 1 || sess.History[0].Role != models.RoleSystem || sess.History[0].Content != "reply OK" {
		t.Fatalf("unexpected seeded history: %+v", sess.History)
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.GetOrCreate(ctx, "a", "sys"); err != nil {
		t.Fatal(err)
	}
	for _, c := range []string{"one", "two", "three"} {
		if err := store.Append(ctx, "a", models.Message{Role: models.RoleUser, Content: c}); err != nil {
			t.Fatal(err)
		}
	}
	sess, _ := store.GetOrCreate(ctx, "a", "sys")
	if len(sess.History) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(sess.History))
	}
	for i, want := range []string{"sys", "one", "two", "three"} {
		if sess.History[i].Content != want {
			t.Fatalf("position %d: want %q got %q", i, want, sess.History[i].Content)
		}
	}
}

func TestReplaceHistoryIncrementsCompactionCount(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.GetOrCreate(ctx, "a", "sys")
	store.Append(ctx, "a", models.Message{Role: models.RoleUser, Content: "hi"})

	if err := store.ReplaceHistory(ctx, "a", []models.Message{
		{Role: models.RoleSystem, Content: "sys"},
		{Role: models.RoleAssistant, Content: "summary"},
	}); err != nil {
		t.Fatal(err)
	}
	sess, _ := store.GetOrCreate(ctx, "a", "sys")
	if len(sess.History) != 2 {
		t.Fatalf("expected history length 2, got %d", len(sess.History))
	}
	if sess.CompactionCount != 1 {
		t.Fatalf("expected compaction count 1, got %d", sess.CompactionCount)
	}
}

func TestClearDropsNonSystemHistory(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.GetOrCreate(ctx, "a", "sys")
	store.Append(ctx, "a", models.Message{Role: models.RoleUser, Content: "hi"})
	if err := store.Clear(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	sess, _ := store.GetOrCreate(ctx, "a", "sys")
	if len(sess.History) != 1 || sess.History[0].Role != models.RoleSystem {
		t.Fatalf("expected only system message after clear, got %+v", sess.History)
	}
}

func TestLockSerializesSameAgentAllowsDifferentAgents(t *testing.T) {
	store := NewMemoryStore()

	unlockA := store.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := store.Lock("b")
		defer unlockB()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on different agent should not block")
	}

	var mu sync.Mutex
	order := []string{}
	go func() {
		unlock := store.Lock("a")
		defer unlock()
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
	}()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	order = append(order, "first")
	mu.Unlock()
	unlockA()
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected serialized order [first second], got %v", order)
	}
}
