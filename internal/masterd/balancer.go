package masterd

import (
	"fmt"
	"hash/crc32"
	"math/rand"
	"sort"
	"sync/atomic"
)

// WorkerBalancer selects which connected worker a newly dispatched client
// socket goes to. Round-robin is the spec-mandated default (spec §8
// "Round-robin fairness" is a testable property); the others are a
// supplemented feature adapting the teacher's loadbalance package, selected
// via PYPROXY_DISPATCH_STRATEGY.
type WorkerBalancer interface {
	Pick(workers []*WorkerStream) (*WorkerStream, error)
	Name() string
}

// NewBalancer constructs the named strategy, defaulting to round-robin for
// an unrecognized or empty name.
func NewBalancer(name string) WorkerBalancer {
	switch name {
	case "weightedrandom":
		return &WeightedRandomBalancer{}
	case "consistenthash":
		return NewConsistentHashBalancer()
	default:
		return &RoundRobinBalancer{}
	}
}

// RoundRobinBalancer distributes dispatched sockets evenly across connected
// workers using a lock-free atomic counter, adapted from the teacher's
// loadbalance.RoundRobinBalancer (registry.ServiceInstance -> WorkerStream).
type RoundRobinBalancer struct {
	counter int64
}

func (b *RoundRobinBalancer) Pick(workers []*WorkerStream) (*WorkerStream, error) {
	if len(workers) == 0 {
		return nil, fmt.Errorf("masterd: no registered workers to dispatch request to")
	}
	index := atomic.AddInt64(&b.counter, 1) % int64(len(workers))
	return workers[index], nil
}

func (b *RoundRobinBalancer) Name() string { return "RoundRobin" }

// WeightedRandomBalancer picks proportionally to each worker's Weight,
// adapted from the teacher's loadbalance.WeightedRandomBalancer. Workers
// all carry weight 1 unless explicitly configured otherwise, so absent
// configuration this degenerates to uniform random selection.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(workers []*WorkerStream) (*WorkerStream, error) {
	if len(workers) == 0 {
		return nil, fmt.Errorf("masterd: no registered workers to dispatch request to")
	}
	total := 0
	for _, w := range workers {
		total += w.Weight
	}
	if total <= 0 {
		return workers[rand.Intn(len(workers))], nil
	}
	r := rand.Intn(total)
	for _, w := range workers {
		r -= w.Weight
		if r < 0 {
			return w, nil
		}
	}
	return nil, fmt.Errorf("masterd: unexpected error in weighted random selection")
}

func (b *WeightedRandomBalancer) Name() string { return "WeightedRandom" }

// ConsistentHashBalancer maps a dispatch key onto a hash ring of workers,
// adapted from the teacher's loadbalance.ConsistentHashBalancer. pyproxy has
// no natural per-request affinity key (atoms are independent, unlike a
// stateful cache lookup) so callers pick a key of their choosing; it is
// offered for parity with the teacher's strategy set, not because the spec
// calls for session affinity across workers.
type ConsistentHashBalancer struct {
	replicas int
	ring     []uint32
	nodes    map[uint32]*WorkerStream
	built    bool
}

func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{replicas: 100, nodes: make(map[uint32]*WorkerStream)}
}

func (b *ConsistentHashBalancer) rebuild(workers []*WorkerStream) {
	b.ring = b.ring[:0]
	b.nodes = make(map[uint32]*WorkerStream, len(workers)*b.replicas)
	for _, w := range workers {
		for i := 0; i < b.replicas; i++ {
			key := fmt.Sprintf("%d#%d", w.Fd, i)
			hash := crc32.ChecksumIEEE([]byte(key))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = w
		}
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

// Pick rebuilds the ring from the current worker set (cheap at pyproxy's
// worker-pool scale) and resolves a random key through PickKey, since
// individual atoms carry no natural affinity key; the worker it returns is
// therefore not stable across calls.
func (b *ConsistentHashBalancer) Pick(workers []*WorkerStream) (*WorkerStream, error) {
	if len(workers) == 0 {
		return nil, fmt.Errorf("masterd: no registered workers to dispatch request to")
	}
	b.rebuild(workers)
	return b.PickKey(fmt.Sprintf("%d", rand.Int63()))
}

// PickKey resolves a specific affinity key against the current ring. Pick
// must be called first to build the ring for the present worker set.
func (b *ConsistentHashBalancer) PickKey(key string) (*WorkerStream, error) {
	if len(b.ring) == 0 {
		return nil, fmt.Errorf("masterd: consistent hash ring is empty")
	}
	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool { return b.ring[i] >= hash })
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) Name() string { return "ConsistentHash" }
