package core

import (
	"sync"
	"time"
)

// contactScheduler runs the two independent, self-rearming contact loops
// spec.md §4.2 describes: a static loop that greets every configured
// static contact on a fixed period, and a dynamic loop that asks all
// currently connected peers for the addresses of the configured dynamic
// contacts. Each loop is a single time.Timer that only re-arms itself once
// its previous tick's work has finished, mirroring the teacher's own
// dial-scheduling discipline in network/p2p/server.go's run() loop
// (scheduleTasks/startTasks), adapted from task-channel orchestration to
// two independent timers since the coordinator has no dialer abstraction
// of its own.
type contactScheduler struct {
	staticInterval  time.Duration
	dynamicInterval time.Duration

	staticTick  func()
	dynamicTick func()

	mu      sync.Mutex
	closed  bool
	closeWG sync.WaitGroup

	staticTimer  *time.Timer
	dynamicTimer *time.Timer
}

func newContactScheduler(staticInterval, dynamicInterval time.Duration, staticTick, dynamicTick func()) *contactScheduler {
	return &contactScheduler{
		staticInterval:  staticInterval,
		dynamicInterval: dynamicInterval,
		staticTick:      staticTick,
		dynamicTick:     dynamicTick,
	}
}

func (s *contactScheduler) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closeWG.Add(2)
	s.staticTimer = time.AfterFunc(s.staticInterval, s.runStatic)
	s.dynamicTimer = time.AfterFunc(s.dynamicInterval, s.runDynamic)
}

func (s *contactScheduler) runStatic() {
	s.staticTick()
	s.rearm(&s.staticTimer, s.staticInterval, s.runStatic, true)
}

func (s *contactScheduler) runDynamic() {
	s.dynamicTick()
	s.rearm(&s.dynamicTimer, s.dynamicInterval, s.runDynamic, false)
}

func (s *contactScheduler) rearm(timer **time.Timer, interval time.Duration, fn func(), isStatic bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.closeWG.Done()
		return
	}
	*timer = time.AfterFunc(interval, fn)
	s.closeWG.Done()
	s.closeWG.Add(1)
}

// close cancels both loops and blocks until neither can fire again,
// fencing the coordinator's close() the way the teacher's loopWG fences
// run() (spec.md §5).
func (s *contactScheduler) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	// Stop reports whether it cancelled the timer before it fired. When it
	// did, runStatic/runDynamic (and therefore rearm's Done) will never run
	// for that timer, so close must retire its closeWG slot itself. When
	// Stop returns false the timer already fired or is firing, and the
	// running (or about-to-run) handler owns that Done call instead.
	stoppedStatic := s.staticTimer != nil && s.staticTimer.Stop()
	stoppedDynamic := s.dynamicTimer != nil && s.dynamicTimer.Stop()
	s.mu.Unlock()
	if stoppedStatic {
		s.closeWG.Done()
	}
	if stoppedDynamic {
		s.closeWG.Done()
	}
	s.closeWG.Wait()
}
