// Package storetest holds behaviour tests shared by every PendingStore backend.
package storetest

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/NicolasHaas/caserelay/pkg/model"
	"github.com/NicolasHaas/caserelay/pkg/store"

	"github.com/google/go-cmp/cmp"
)

// Factory opens a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.PendingStore

// Msg builds a victim-directed message with a numbered body.
func Msg(recipient string, n int) model.Message {
	return model.Message{
		Type:     model.TypePoliceToVictim,
		Payload:  json.RawMessage(fmt.Sprintf(`{"recipientId":%q,"text":"update %d"}`, recipient, n)),
		SenderID: "off1",
		Extra:    map[string]json.RawMessage{"id": json.RawMessage(fmt.Sprintf(`"m-%d"`, n))},
	}
}

// Run exercises the PendingStore contract against stores built by open.
func Run(t *testing.T, open Factory) {
	t.Run("drain_absent_queue", func(t *testing.T) {
		st := open(t)
		got, err := st.DrainAndClear("victim-nobody")
		if err != nil {
			t.Fatalf("DrainAndClear: unexpected error: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("DrainAndClear: expected empty queue, got %d messages", len(got))
		}
	})

	t.Run("fifo_and_cleared", func(t *testing.T) {
		st := open(t)
		want := []model.Message{Msg("victim-michael", 1), Msg("victim-michael", 2), Msg("victim-michael", 3)}
		for _, m := range want {
			if err := st.Enqueue("victim-michael", m); err != nil {
				t.Fatalf("Enqueue: unexpected error: %v", err)
			}
		}
		if n, _ := st.Len("victim-michael"); n != 3 {
			t.Fatalf("Len: want 3 got %d", n)
		}

		got, err := st.DrainAndClear("victim-michael")
		if err != nil {
			t.Fatalf("DrainAndClear: unexpected error: %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("DrainAndClear mismatch (-want +got):\n%s", diff)
		}

		again, err := st.DrainAndClear("victim-michael")
		if err != nil {
			t.Fatalf("second DrainAndClear: unexpected error: %v", err)
		}
		if len(again) != 0 {
			t.Fatalf("second DrainAndClear: expected empty, got %d", len(again))
		}
		if n, _ := st.Len("victim-michael"); n != 0 {
			t.Fatalf("Len after drain: want 0 got %d", n)
		}
	})

	t.Run("queues_are_independent", func(t *testing.T) {
		st := open(t)
		_ = st.Enqueue("victim-a", Msg("victim-a", 1))
		_ = st.Enqueue("victim-b", Msg("victim-b", 1))
		_ = st.Enqueue("victim-a", Msg("victim-a", 2))

		if total, _ := st.Total(); total != 3 {
			t.Fatalf("Total: want 3 got %d", total)
		}
		got, _ := st.DrainAndClear("victim-a")
		if len(got) != 2 {
			t.Fatalf("DrainAndClear(victim-a): want 2 got %d", len(got))
		}
		if n, _ := st.Len("victim-b"); n != 1 {
			t.Fatalf("Len(victim-b): want 1 got %d", n)
		}
		if total, _ := st.Total(); total != 1 {
			t.Fatalf("Total after drain: want 1 got %d", total)
		}
	})

	t.Run("queue_persists_across_offline_periods", func(t *testing.T) {
		st := open(t)
		_ = st.Enqueue("victim-x", Msg("victim-x", 1))
		_ = st.Enqueue("victim-y", Msg("victim-y", 1))
		_, _ = st.DrainAndClear("victim-y")
		_ = st.Enqueue("victim-x", Msg("victim-x", 2))

		got, _ := st.DrainAndClear("victim-x")
		want := []model.Message{Msg("victim-x", 1), Msg("victim-x", 2)}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("DrainAndClear mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("concurrent_enqueue", func(t *testing.T) {
		st := open(t)
		const writers, per = 8, 25
		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < per; i++ {
					if err := st.Enqueue("victim-busy", Msg("victim-busy", i)); err != nil {
						t.Errorf("Enqueue: %v", err)
						return
					}
				}
			}()
		}
		wg.Wait()

		got, err := st.DrainAndClear("victim-busy")
		if err != nil {
			t.Fatalf("DrainAndClear: %v", err)
		}
		if len(got) != writers*per {
			t.Fatalf("DrainAndClear: want %d messages got %d", writers*per, len(got))
		}
	})
}
