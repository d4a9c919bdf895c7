package masterd

import "testing"

func newWorkers(n int) []*WorkerStream {
	workers := make([]*WorkerStream, n)
	for i := range workers {
		workers[i] = NewWorkerStream(i + 1)
	}
	return workers
}

func TestRoundRobinBalancerCyclesThroughWorkers(t *testing.T) {
	workers := newWorkers(3)
	b := &RoundRobinBalancer{}

	seen := make(map[int]int)
	for i := 0; i < 9; i++ {
		w, err := b.Pick(workers)
		if err != nil {
			t.Fatalf("Pick: unexpected error %v", err)
		}
		seen[w.Fd]++
	}
	for _, w := range workers {
		if seen[w.Fd] != 3 {
			t.Fatalf("worker fd=%d picked %d times, want 3 across 9 rounds", w.Fd, seen[w.Fd])
		}
	}
}

func TestRoundRobinBalancerRejectsEmptySet(t *testing.T) {
	b := &RoundRobinBalancer{}
	if _, err := b.Pick(nil); err == nil {
		t.Fatalf("Pick: expected an error for an empty worker set")
	}
}

func TestWeightedRandomBalancerOnlyPicksKnownWorkers(t *testing.T) {
	workers := newWorkers(4)
	b := &WeightedRandomBalancer{}
	valid := make(map[int]bool)
	for _, w := range workers {
		valid[w.Fd] = true
	}
	for i := 0; i < 50; i++ {
		w, err := b.Pick(workers)
		if err != nil {
			t.Fatalf("Pick: unexpected error %v", err)
		}
		if !valid[w.Fd] {
			t.Fatalf("Pick returned an unknown worker fd=%d", w.Fd)
		}
	}
}

func TestConsistentHashBalancerIsDeterministicForAKey(t *testing.T) {
	workers := newWorkers(5)
	b := NewConsistentHashBalancer()
	b.rebuild(workers)

	w1, err := b.PickKey("session-a")
	if err != nil {
		t.Fatalf("PickKey: unexpected error %v", err)
	}
	w2, err := b.PickKey("session-a")
	if err != nil {
		t.Fatalf("PickKey: unexpected error %v", err)
	}
	if w1.Fd != w2.Fd {
		t.Fatalf("PickKey: same key resolved to different workers (%d vs %d)", w1.Fd, w2.Fd)
	}
}

func TestConsistentHashBalancerRejectsEmptySet(t *testing.T) {
	b := NewConsistentHashBalancer()
	if _, err := b.Pick(nil); err == nil {
		t.Fatalf("Pick: expected an error for an empty worker set")
	}
}

func TestNewBalancerDefaultsToRoundRobin(t *testing.T) {
	if name := NewBalancer("").Name(); name != "RoundRobin" {
		t.Fatalf("NewBalancer(\"\") = %s, want RoundRobin", name)
	}
	if name := NewBalancer("bogus").Name(); name != "RoundRobin" {
		t.Fatalf("NewBalancer(\"bogus\") = %s, want RoundRobin", name)
	}
	if name := NewBalancer("weightedrandom").Name(); name != "WeightedRandom" {
		t.Fatalf("NewBalancer(\"weightedrandom\") = %s, want WeightedRandom", name)
	}
	if name := NewBalancer("consistenthash").Name(); name != "ConsistentHash" {
		t.Fatalf("NewBalancer(\"consistenthash\") = %s, want ConsistentHash", name)
	}
}
