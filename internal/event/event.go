// Package event implements a one-to-many fan-out feed, used to expose the
// coordinator's optional user-supplied session-established/failed/lost
// notifications (spec.md §6).
//
// Adapted from the call sites of the teacher's (unretrieved) common/event
// package: network/p2p/server.go holds a `peerFeed event.Feed`, sends to it
// with `srv.peerFeed.Send(&PeerEvent{...})`, and exposes it to callers via
// `SubscribeEvents(ch chan *PeerEvent) event.Subscription`.
package event

import (
	"errors"
	"reflect"
	"sync"
)

// Subscription represents a stream of events. The carrier of the events is
// typically a channel, but isn't part of the interface.
type Subscription interface {
	// Unsubscribe stops delivery of events to a subscription's channel.
	Unsubscribe()
	// Err returns a channel closed when the subscription ends.
	Err() <-chan error
}

// ErrFeedTypeMismatch is the value Send panics with when its argument's
// type does not match the element type of a previously subscribed channel.
var ErrFeedTypeMismatch = errors.New("event: Send argument does not match channel type")

// Feed implements one-to-many subscriptions where the carrier of events is
// a channel. Values sent to Send are delivered to every subscribed channel.
// The zero value is ready to use.
type Feed struct {
	mu    sync.Mutex
	etype reflect.Type
	subs  map[*feedSub]struct{}
}

type feedSub struct {
	feed *Feed
	ch   reflect.Value
	err  chan error
	once sync.Once
}

// Subscribe adds a channel to the feed. Future sends on the feed will be
// delivered on the returned subscription's channel until it is closed by
// calling Unsubscribe.
//
// The channel should have ample buffer space to avoid blocking other
// subscribers; Send does not block on slow subscribers, it simply skips
// them for that delivery.
func (f *Feed) Subscribe(channel interface{}) Subscription {
	chanval := reflect.ValueOf(channel)
	chantyp := chanval.Type()
	if chantyp.Kind() != reflect.Chan || chantyp.ChanDir()&reflect.SendDir == 0 {
		panic("event: Subscribe argument does not have sendable channel type")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.typecheck(chantyp.Elem()) {
		panic("event: Subscribe channel type does not match Feed type")
	}
	if f.subs == nil {
		f.subs = make(map[*feedSub]struct{})
	}
	sub := &feedSub{feed: f, ch: chanval, err: make(chan error, 1)}
	f.subs[sub] = struct{}{}
	return sub
}

func (f *Feed) typecheck(typ reflect.Type) bool {
	if f.etype == nil {
		f.etype = typ
		return true
	}
	return f.etype == typ
}

func (s *feedSub) Unsubscribe() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s)
		s.feed.mu.Unlock()
		s.err <- nil
		close(s.err)
	})
}

func (s *feedSub) Err() <-chan error {
	return s.err
}

// Send delivers v to all subscribed channels. It returns the number of
// subscribers that the value was sent to. Sends to a full subscriber
// channel are skipped rather than blocking the caller.
func (f *Feed) Send(v interface{}) (nsent int) {
	rvalue := reflect.ValueOf(v)

	f.mu.Lock()
	if !f.typecheck(rvalue.Type()) {
		f.mu.Unlock()
		panic(ErrFeedTypeMismatch)
	}
	subs := make([]*feedSub, 0, len(f.subs))
	for sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	for _, sub := range subs {
		if sub.ch.TrySend(rvalue) {
			nsent++
		}
	}
	return nsent
}
