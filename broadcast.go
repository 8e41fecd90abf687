package rxpool

import "sync"

// Broadcast is a single logical "done" token. Firing it terminates every registered target exactly once, so a
// stage reaching its end does not have to enumerate and complete its sibling streams itself.
type Broadcast struct {
	mu      sync.Mutex
	targets []Terminator
	fired   bool
	err     error
	done    chan struct{}
}

// NewBroadcast creates a Broadcast terminating targets when fired.
func NewBroadcast(targets ...Terminator) *Broadcast {
	return &Broadcast{
		targets: targets,
		done:    make(chan struct{}),
	}
}

// Add registers t. If the Broadcast already fired, t is terminated immediately with the same outcome.
func (b *Broadcast) Add(t Terminator) {
	b.mu.Lock()
	if !b.fired {
		b.targets = append(b.targets, t)
		b.mu.Unlock()
		return
	}
	err := b.err
	b.mu.Unlock()
	terminate(t, err)
}

// Complete fires the Broadcast successfully. Only the first Complete or Fail has an effect.
func (b *Broadcast) Complete() { b.fire(nil) }

// Fail fires the Broadcast with err.
func (b *Broadcast) Fail(err error) { b.fire(err) }

// Done is closed once the Broadcast fired.
func (b *Broadcast) Done() <-chan struct{} { return b.done }

// Err returns the error the Broadcast failed with, if any.
func (b *Broadcast) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *Broadcast) fire(err error) {
	b.mu.Lock()
	if b.fired {
		b.mu.Unlock()
		return
	}
	b.fired = true
	b.err = err
	targets := b.targets
	b.targets = nil
	close(b.done)
	b.mu.Unlock()

	for _, t := range targets {
		terminate(t, err)
	}
}

func terminate(t Terminator, err error) {
	if err != nil {
		t.OnError(err)
		return
	}
	t.OnCompleted()
}
