package rxpool

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Observer receives the notifications of a Subject. Nil callbacks are skipped.
type Observer[T any] struct {
	OnNext      func(T)
	OnCompleted func()
	OnError     func(error)
}

// Terminator is anything that can be completed or failed, such as a Subject.
type Terminator interface {
	OnCompleted()
	OnError(err error)
}

// Source is anything whose termination can be watched, such as a Subject.
type Source interface {
	Watch(onCompleted func(), onError func(error)) *Subscription
}

type kind int

const (
	next kind = iota
	completed
	failed
)

type notification[T any] struct {
	kind    kind
	value   T
	err     error
	targets []*subscriber[T]
}

type subscriber[T any] struct {
	observer Observer[T]
	sub      *Subscription
}

func (s *subscriber[T]) deliver(n notification[T]) {
	if !s.sub.active.Load() {
		return
	}
	switch n.kind {
	case next:
		if s.observer.OnNext != nil {
			s.observer.OnNext(n.value)
		}
	case completed:
		s.sub.active.Store(false)
		if s.observer.OnCompleted != nil {
			s.observer.OnCompleted()
		}
	case failed:
		s.sub.active.Store(false)
		if s.observer.OnError != nil {
			s.observer.OnError(n.err)
		}
	}
}

// Subscription links an observer to a Subject until it unsubscribes or the Subject terminates.
type Subscription struct {
	id     uuid.UUID
	active atomic.Bool
	remove func()
}

// ID identifies the subscription.
func (s *Subscription) ID() uuid.UUID { return s.id }

// Active reports whether notifications are still delivered.
func (s *Subscription) Active() bool { return s.active.Load() }

// Unsubscribe stops delivery. It is idempotent and may be called from inside a callback.
func (s *Subscription) Unsubscribe() {
	if s.active.Swap(false) && s.remove != nil {
		s.remove()
	}
}

// Subject is a hot multicast stream: every value published is broadcast to the observers subscribed at that time.
//
// Publishing is safe from any goroutine. Deliveries are serialized: the goroutine that finds the Subject idle
// drains the notifications queued by every publisher, so each observer sees values in publish order and a callback
// may publish to, or terminate, the Subject it is called from. Completion and error are terminal.
//
// An observer that panics does not stop delivery: the rest of the queue still reaches every observer, then the
// first panic is raised again in the publishing goroutine.
type Subject[T any] struct {
	mu         sync.Mutex
	subs       map[uuid.UUID]*subscriber[T]
	queue      []notification[T]
	emitting   bool
	terminated bool
	err        error
}

// NewSubject creates an empty Subject.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{subs: make(map[uuid.UUID]*subscriber[T])}
}

// Subscribe registers obs. On a terminated Subject the terminal notification is delivered right away and the
// returned Subscription is inactive.
func (s *Subject[T]) Subscribe(obs Observer[T]) *Subscription {
	sub := &Subscription{id: uuid.New()}
	sub.active.Store(true)
	sub.remove = func() {
		s.mu.Lock()
		delete(s.subs, sub.id)
		s.mu.Unlock()
	}
	entry := &subscriber[T]{observer: obs, sub: sub}

	s.mu.Lock()
	if s.terminated {
		err := s.err
		s.mu.Unlock()
		if err != nil {
			entry.deliver(notification[T]{kind: failed, err: err})
		} else {
			entry.deliver(notification[T]{kind: completed})
		}
		return sub
	}
	s.subs[sub.id] = entry
	s.mu.Unlock()
	return sub
}

// Watch subscribes to the termination of the Subject only.
func (s *Subject[T]) Watch(onCompleted func(), onError func(error)) *Subscription {
	return s.Subscribe(Observer[T]{OnCompleted: onCompleted, OnError: onError})
}

// OnNext publishes v. It is ignored once the Subject terminated.
func (s *Subject[T]) OnNext(v T) {
	s.publish(notification[T]{kind: next, value: v})
}

// OnCompleted terminates the Subject. Only the first terminal notification is delivered.
func (s *Subject[T]) OnCompleted() {
	s.publish(notification[T]{kind: completed})
}

// OnError terminates the Subject with err.
func (s *Subject[T]) OnError(err error) {
	s.publish(notification[T]{kind: failed, err: err})
}

// Completed reports whether the Subject has terminated, with or without error.
func (s *Subject[T]) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// SubscriberCount returns the number of active subscriptions.
func (s *Subject[T]) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Subject[T]) publish(n notification[T]) {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}
	n.targets = lo.Values(s.subs)
	if n.kind != next {
		s.terminated = true
		s.err = n.err
		clear(s.subs) // subscriptions are released on termination
	}
	s.queue = append(s.queue, n)
	if s.emitting {
		s.mu.Unlock()
		return
	}
	s.emitting = true
	s.mu.Unlock()

	s.drain()
}

func (s *Subject[T]) drain() {
	var first any
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.emitting = false
			s.mu.Unlock()
			break
		}
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, n := range batch {
			for _, target := range n.targets {
				if r := deliverSafely(target, n); r != nil && first == nil {
					first = r
				}
			}
		}
	}
	if first != nil {
		panic(first)
	}
}

// deliverSafely returns the value an observer panicked with, if any.
func deliverSafely[T any](target *subscriber[T], n notification[T]) (panicked any) {
	defer func() {
		panicked = recover()
	}()
	target.deliver(n)
	return nil
}
