package storage

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Subscription is a live-read stream of one path.
//
// The first snapshot is the current value; after that a fresh snapshot is
// produced whenever a write through the Gateway touches the path, and on
// every poll tick if the Gateway has a poll interval. Only the latest
// snapshot is buffered. Close must be called when the consumer is done.
type Subscription struct {
	g    *Gateway
	path string

	ch      chan Snapshot
	wakeCh  chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc
	closing sync.Once
}

// Watch opens a live-read subscription on path. The subscription is released
// by Close or when ctx is done.
func (g *Gateway) Watch(ctx context.Context, path string) (*Subscription, error) {
	clean, err := CleanPath(path)
	if err != nil {
		return nil, &StoreError{Op: "watch", Path: path, Err: err}
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		g:      g,
		path:   clean,
		ch:     make(chan Snapshot, 1),
		wakeCh: make(chan struct{}, 1),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	if err := g.register(s); err != nil {
		cancel()
		return nil, &StoreError{Op: "watch", Path: clean, Err: err}
	}

	go s.run(ctx)
	return s, nil
}

// C returns the channel of snapshots. It is closed after the subscription ends.
func (s *Subscription) C() <-chan Snapshot {
	return s.ch
}

// Path returns the watched path.
func (s *Subscription) Path() string {
	return s.path
}

// Done is closed once the subscription has been released.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close releases the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.closing.Do(func() {
		s.cancel()
		s.g.unregister(s)
	})
	<-s.done
}

// Next waits for the next snapshot.
func (s *Subscription) Next(ctx context.Context) (Snapshot, error) {
	select {
	case snap, ok := <-s.ch:
		if !ok {
			return Snapshot{}, ErrClosed
		}
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (s *Subscription) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Subscription) run(ctx context.Context) {
	defer func() {
		s.closing.Do(func() {
			s.cancel()
			s.g.unregister(s)
		})
		close(s.ch)
		close(s.done)
	}()

	var tick <-chan time.Time
	if s.g.poll > 0 {
		t := time.NewTicker(s.g.poll)
		defer t.Stop()
		tick = t.C
	}

	for {
		snap, _ := s.g.Read(ctx, s.path)
		if ctx.Err() != nil {
			return
		}
		if snap.Err != nil && errors.Is(snap.Err, ErrClosed) {
			return
		}
		s.deliver(snap)

		select {
		case <-ctx.Done():
			return
		case <-s.wakeCh:
		case <-tick:
		}
	}
}

// deliver replaces any undelivered snapshot with snap.
func (s *Subscription) deliver(snap Snapshot) {
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
}
