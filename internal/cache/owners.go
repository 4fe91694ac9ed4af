package cache

import (
	"context"
	"sync"
)

// Owners hands out exclusive turns per key. Work for one key runs one caller
// at a time; different keys never block each other.
type Owners struct {
	mu     sync.Mutex
	owners map[string]*owner
}

type owner struct {
	turn chan struct{}
	refs int
}

// NewOwners creates an empty owner set.
func NewOwners() *Owners {
	return &Owners{owners: make(map[string]*owner)}
}

// Acquire waits for the turn on key and returns the function that gives it
// back. It returns ctx.Err() if ctx ends first.
func (o *Owners) Acquire(ctx context.Context, key string) (func(), error) {
	o.mu.Lock()
	ow, ok := o.owners[key]
	if !ok {
		ow = &owner{turn: make(chan struct{}, 1)}
		o.owners[key] = ow
	}
	ow.refs++
	o.mu.Unlock()

	select {
	case ow.turn <- struct{}{}:
	case <-ctx.Done():
		o.leave(key, ow)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-ow.turn
			o.leave(key, ow)
		})
	}, nil
}

func (o *Owners) leave(key string, ow *owner) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ow.refs--
	if ow.refs == 0 {
		delete(o.owners, key)
	}
}

// Len returns the number of keys with a holder or waiters.
func (o *Owners) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.owners)
}
