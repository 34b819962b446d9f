package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/AsynkronIT/protoactor-go/actor"

	"github.com/promoreira/freelan/netaddr"
)

// strand serializes the closures the core posts for one peer (its
// PeerRecord updates from hello, greet, presentation and
// session-established handling) through a single protoactor-go actor
// mailbox. This is the GLOSSARY's "Strand": a protoactor-go actor's
// mailbox delivers messages one-at-a-time, in arrival order (SPEC_FULL.md
// §9). The engine callbacks themselves run on the engine's goroutines;
// the admission and trust checks, port registration and deregistration,
// session-lost handling and data demultiplexing are not posted to the
// strand, so two callbacks for the same peer can run concurrently.
type strand struct {
	pid *actor.PID
}

type strandExecute struct {
	fn   func()
	done chan struct{}
}

type strandAsk struct {
	fn     func() bool
	result chan bool
}

// strandBody is the protoactor-go Actor every per-peer strand runs.
type strandBody struct{}

func (strandBody) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *strandExecute:
		msg.fn()
		close(msg.done)
	case *strandAsk:
		msg.result <- msg.fn()
	}
}

func newStrand(name string) (*strand, error) {
	props := actor.FromProducer(func() actor.Actor { return &strandBody{} })
	pid, err := actor.SpawnNamed(props, name)
	if err != nil {
		return nil, err
	}
	return &strand{pid: pid}, nil
}

// Tell posts fn to run on the strand and returns immediately. fn's
// completion is not observed by the caller.
func (s *strand) Tell(fn func()) {
	s.pid.Tell(&strandExecute{fn: fn, done: make(chan struct{})})
}

// Do posts fn to run on the strand and blocks until it has completed.
func (s *strand) Do(fn func()) {
	done := make(chan struct{})
	s.pid.Tell(&strandExecute{fn: fn, done: done})
	<-done
}

// Ask posts fn to run on the strand and blocks for its bool result, used
// for the bool-returning engine callbacks (spec.md §4.3).
func (s *strand) Ask(fn func() bool) bool {
	result := make(chan bool, 1)
	s.pid.Tell(&strandAsk{fn: fn, result: result})
	select {
	case v := <-result:
		return v
	case <-time.After(10 * time.Second):
		// The strand is gone or wedged; the safe failure mode for an
		// admission/trust decision is to deny (§9's "safe failure mode"
		// note, applied here to a stuck strand rather than an outlived
		// verification).
		return false
	}
}

func (s *strand) stop() {
	s.pid.Stop()
}

// strandRegistry owns one strand per live peer, keyed by address.
type strandRegistry struct {
	mu       sync.Mutex
	strands  map[netaddr.PeerAddress]*strand
	nextName int
}

func newStrandRegistry() *strandRegistry {
	return &strandRegistry{strands: make(map[netaddr.PeerAddress]*strand)}
}

// get returns the strand for addr, creating it if necessary. Each created
// strand gets a fresh actor name, since actor.SpawnNamed rejects a reused
// name and the same peer address can cycle through several strands over
// the life of a core (session lost, then re-established).
func (r *strandRegistry) get(addr netaddr.PeerAddress) *strand {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.strands[addr]; ok {
		return s
	}
	r.nextName++
	s, err := newStrand(fmt.Sprintf("peer-strand-%d", r.nextName))
	if err != nil {
		// A name collision here is a programming error, not a runtime
		// condition callers can recover from.
		panic(err)
	}
	r.strands[addr] = s
	return s
}

// drop stops and forgets the strand for addr, if any.
func (r *strandRegistry) drop(addr netaddr.PeerAddress) {
	r.mu.Lock()
	s, ok := r.strands[addr]
	if ok {
		delete(r.strands, addr)
	}
	r.mu.Unlock()
	if ok {
		s.stop()
	}
}

// closeAll stops every outstanding strand, used by Core.Close to fence off
// further handler execution (spec.md §5 "close() is a fence").
func (r *strandRegistry) closeAll() {
	r.mu.Lock()
	strands := make([]*strand, 0, len(r.strands))
	for addr, s := range r.strands {
		strands = append(strands, s)
		delete(r.strands, addr)
	}
	r.mu.Unlock()
	for _, s := range strands {
		s.stop()
	}
}
