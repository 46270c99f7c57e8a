package api //nolint:revive // package name is intentional

import (
	"sync/atomic"

	"github.com/blueberrycongee/thunderchat"
)

type clientSwap[T interface{ Close() error }] struct {
	current atomic.Pointer[clientRef[T]]
}

type clientRef[T interface{ Close() error }] struct {
	client  T
	refs    atomic.Int64
	closing atomic.Bool
	closed  atomic.Bool
}

func newClientSwap[T interface{ Close() error }](client T) *clientSwap[T] {
	swap := &clientSwap[T]{}
	swap.current.Store(&clientRef[T]{client: client})
	return swap
}

func (s *clientSwap[T]) acquire() (T, func()) {
	ref := s.current.Load()
	if ref == nil {
		var zero T
		return zero, func() {}
	}

	ref.refs.Add(1)

	release := func() {
		if ref.refs.Add(-1) == 0 && ref.closing.Load() {
			ref.closeOnce()
		}
	}

	return ref.client, release
}

func (s *clientSwap[T]) swap(next T) {
	prev := s.current.Swap(&clientRef[T]{client: next})
	if prev == nil {
		return
	}
	prev.retire()
}

func (s *clientSwap[T]) closeCurrent() {
	if ref := s.current.Load(); ref != nil {
		ref.retire()
	}
}

func (s *clientSwap[T]) currentClient() T {
	ref := s.current.Load()
	if ref == nil {
		var zero T
		return zero
	}
	return ref.client
}

func (r *clientRef[T]) retire() {
	r.closing.Store(true)
	if r.refs.Load() == 0 {
		r.closeOnce()
	}
}

func (r *clientRef[T]) closeOnce() {
	if r.closed.CompareAndSwap(false, true) {
		_ = r.client.Close()
	}
}

// ClientSwapper manages a hot-swappable thunderchat.Client for handlers.
// A config reload builds a new client and swaps it in; turns already
// running finish on the client they acquired.
type ClientSwapper struct {
	swapper *clientSwap[*thunderchat.Client]
}

// NewClientSwapper creates a new swapper seeded with the initial client.
func NewClientSwapper(client *thunderchat.Client) *ClientSwapper {
	return &ClientSwapper{swapper: newClientSwap(client)}
}

// Acquire returns the current client and a release function.
// Call release when the request is done to allow safe client shutdown.
func (s *ClientSwapper) Acquire() (*thunderchat.Client, func()) {
	return s.swapper.acquire()
}

// Swap atomically replaces the current client with the next one.
// The old client is closed once in-flight users release it.
func (s *ClientSwapper) Swap(next *thunderchat.Client) {
	s.swapper.swap(next)
}

// Close marks the current client as closing and closes it when idle.
func (s *ClientSwapper) Close() {
	s.swapper.closeCurrent()
}

// Current returns the current client without affecting its lifetime.
func (s *ClientSwapper) Current() *thunderchat.Client {
	return s.swapper.currentClient()
}
