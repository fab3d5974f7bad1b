package app

import "testing"

func TestBroadcastDropsSnapshotsOlderThanDelivered(t *testing.T) {
	a := NewAttempt(AttemptKey{QuizID: "quiz-1", UserID: "u1"}, nil)
	ch, cancel := a.subscribe()
	defer cancel()

	first := <-ch
	a.broadcast(Snapshot{Seq: first.Seq + 2, State: StateResults})
	a.broadcast(Snapshot{Seq: first.Seq + 1, State: StateTaking})

	got := <-ch
	if got.State != StateResults {
		t.Fatalf("expected newest snapshot, got %s", got.State)
	}
	select {
	case stale := <-ch:
		t.Fatalf("stale snapshot delivered after newer one: %+v", stale)
	default:
	}
}

func TestSnapshotSequenceIncreases(t *testing.T) {
	m := NewMachine(nil, MachineOptions{})
	a, b := m.Snapshot(), m.Snapshot()
	if b.Seq <= a.Seq {
		t.Fatalf("expected increasing sequence, got %d then %d", a.Seq, b.Seq)
	}
}
