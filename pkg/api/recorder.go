package api

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/psaab/iproute2/pkg/grammar"
)

// resultOK is the metrics label for successful parses.
const resultOK = "ok"

// Recorder counts parse outcomes and fans parse events out to
// subscribers. It is shared by the HTTP and gRPC front ends.
type Recorder struct {
	mu     sync.Mutex
	counts map[CountKey]*atomic.Uint64
	subs   map[*Subscription]struct{}
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		counts: make(map[CountKey]*atomic.Uint64),
		subs:   make(map[*Subscription]struct{}),
	}
}

// Record notes one parse of input from source. err is nil on success.
func (rc *Recorder) Record(source, input string, r *grammar.Route, err error) {
	kind := resultOK
	ev := ParseEvent{Time: time.Now().Format(time.RFC3339), Source: source, Input: input}
	if err != nil {
		kind = grammar.ErrorKind(err)
		ev.Error, ev.Kind = err.Error(), kind
	} else if r != nil {
		ev.Canonical = r.String()
	}

	rc.mu.Lock()
	key := CountKey{Source: source, Result: kind}
	c, ok := rc.counts[key]
	if !ok {
		c = new(atomic.Uint64)
		rc.counts[key] = c
	}
	subs := make([]*Subscription, 0, len(rc.subs))
	for s := range rc.subs {
		subs = append(subs, s)
	}
	rc.mu.Unlock()

	c.Add(1)
	for _, s := range subs {
		select {
		case s.C <- ev:
		default:
			// slow subscriber; drop
		}
	}
}

// CountKey labels a parse counter.
type CountKey struct {
	Source string
	Result string // "ok" or an error kind
}

// Counts returns a snapshot of the counters.
func (rc *Recorder) Counts() map[CountKey]uint64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make(map[CountKey]uint64, len(rc.counts))
	for k, v := range rc.counts {
		out[k] = v.Load()
	}
	return out
}

// Subscription receives parse events until closed.
type Subscription struct {
	C  chan ParseEvent
	rc *Recorder
}

// Subscribe registers a subscriber with a buffer of n events.
func (rc *Recorder) Subscribe(n int) *Subscription {
	s := &Subscription{C: make(chan ParseEvent, n), rc: rc}
	rc.mu.Lock()
	rc.subs[s] = struct{}{}
	rc.mu.Unlock()
	return s
}

// Subscribers returns the number of live subscriptions.
func (rc *Recorder) Subscribers() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.subs)
}

// Close unregisters the subscription.
func (s *Subscription) Close() {
	s.rc.mu.Lock()
	delete(s.rc.subs, s)
	s.rc.mu.Unlock()
}
