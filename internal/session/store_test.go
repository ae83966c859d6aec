package session

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func exchange(i int) (Message, Message) {
	now := time.Now()
	return Message{Role: RoleUser, Content: fmt.Sprintf("question %d", i), Time: now},
		Message{Role: RoleModel, Content: fmt.Sprintf("answer %d", i), Time: now}
}

func TestStore_AppendExchange_TrimsToPairBudget(t *testing.T) {
	store := NewStore(3, time.Hour)

	for i := 0; i < 5; i++ {
		u, m := exchange(i)
		store.AppendExchange("s1", u, m)
	}

	msgs := store.History("s1")
	if len(msgs) != 6 {
		t.Fatalf("len(History) = %d, want 6", len(msgs))
	}
	if got, want := msgs[0].Content, "question 2"; got != want {
		t.Errorf("oldest kept message = %q, want %q", got, want)
	}
	for i, msg := range msgs {
		want := RoleUser
		if i%2 == 1 {
			want = RoleModel
		}
		if msg.Role != want {
			t.Errorf("message %d role = %q, want %q", i, msg.Role, want)
		}
	}
}

func TestStore_Trim_NeverSplitsPair(t *testing.T) {
	store := NewStore(2, time.Hour)

	// Five single appends leave the four-message window opening on a
	// model message; the trim must drop it rather than keep a dangling
	// answer with no question.
	roles := []string{RoleUser, RoleModel, RoleUser, RoleModel, RoleUser}
	for i, role := range roles {
		store.Append("s1", Message{Role: role, Content: fmt.Sprintf("m%d", i)})
	}

	msgs := store.History("s1")
	if len(msgs) != 3 {
		t.Fatalf("len(History) = %d, want 3", len(msgs))
	}
	if msgs[0].Role != RoleUser {
		t.Errorf("first kept message role = %q, want %q", msgs[0].Role, RoleUser)
	}
}

func TestStore_Get_ReturnsCopy(t *testing.T) {
	store := NewStore(5, time.Hour)
	u, m := exchange(0)
	store.AppendExchange("s1", u, m)

	snap, ok := store.Get("s1")
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	snap.Messages[0].Content = "tampered"

	again, _ := store.Get("s1")
	if again.Messages[0].Content != "question 0" {
		t.Error("mutating a snapshot changed stored history")
	}

	if _, ok := store.Get("missing"); ok {
		t.Error("Get(missing) ok = true, want false")
	}
}

func TestStore_Seed(t *testing.T) {
	store := NewStore(3, time.Hour)
	seedMsgs := []Message{
		{Role: RoleUser, Content: "earlier question"},
		{Role: RoleModel, Content: "earlier answer"},
	}

	if !store.Seed("s1", seedMsgs) {
		t.Fatal("Seed() on new session = false, want true")
	}
	if got := store.History("s1"); len(got) != 2 || got[0].Content != "earlier question" {
		t.Fatalf("History after seed = %+v", got)
	}

	// A second seed must not overwrite what the session already holds.
	if store.Seed("s1", []Message{{Role: RoleUser, Content: "replayed"}}) {
		t.Error("Seed() on existing session = true, want false")
	}
	if got := store.History("s1"); len(got) != 2 {
		t.Errorf("len(History) after rejected seed = %d, want 2", len(got))
	}

	u, m := exchange(1)
	store.AppendExchange("s2", u, m)
	if store.Seed("s2", seedMsgs) {
		t.Error("Seed() after AppendExchange = true, want false")
	}
}

func TestStore_Seed_TrimsOverlongHistory(t *testing.T) {
	store := NewStore(2, time.Hour)

	var msgs []Message
	for i := 0; i < 6; i++ {
		u, m := exchange(i)
		msgs = append(msgs, u, m)
	}
	store.Seed("s1", msgs)

	got := store.History("s1")
	if len(got) != 4 {
		t.Fatalf("len(History) = %d, want 4", len(got))
	}
	if got[0].Content != "question 4" {
		t.Errorf("oldest kept message = %q, want %q", got[0].Content, "question 4")
	}
}

func TestStore_ClearAndCount(t *testing.T) {
	store := NewStore(3, time.Hour)
	u, m := exchange(0)
	store.AppendExchange("a", u, m)
	store.AppendExchange("b", u, m)

	if got := store.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}
	if !store.Clear("a") {
		t.Error("Clear(a) = false, want true")
	}
	if store.Clear("a") {
		t.Error("Clear(a) twice = true, want false")
	}
	if got := store.Count(); got != 1 {
		t.Errorf("Count() after clear = %d, want 1", got)
	}
	if got := store.History("a"); got != nil {
		t.Errorf("History(a) after clear = %v, want nil", got)
	}
}

func TestStore_EvictIdle(t *testing.T) {
	store := NewStore(3, time.Minute)
	u, m := exchange(0)
	store.AppendExchange("a", u, m)
	store.AppendExchange("b", u, m)

	if n := store.EvictIdle(time.Now()); n != 0 {
		t.Errorf("EvictIdle(now) = %d, want 0", n)
	}
	if n := store.EvictIdle(time.Now().Add(2 * time.Minute)); n != 2 {
		t.Errorf("EvictIdle(now+2m) = %d, want 2", n)
	}
	if got := store.Count(); got != 0 {
		t.Errorf("Count() after eviction = %d, want 0", got)
	}
}

func TestStore_ConcurrentExchanges(t *testing.T) {
	store := NewStore(200, time.Hour)

	var wg sync.WaitGroup
	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				u, m := exchange(i)
				store.AppendExchange("shared", u, m)
			}
		}()
	}
	wg.Wait()

	msgs := store.History("shared")
	if len(msgs) != 200 {
		t.Fatalf("len(History) = %d, want 200", len(msgs))
	}
	for i, msg := range msgs {
		want := RoleUser
		if i%2 == 1 {
			want = RoleModel
		}
		if msg.Role != want {
			t.Fatalf("message %d role = %q, want %q: exchange halves interleaved", i, msg.Role, want)
		}
	}
}
