// Package playback places decoded audio fragments on a gapless output
// timeline and cancels them on barge-in.
package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/AltairaLabs/livevoice/logger"
	"github.com/AltairaLabs/livevoice/pcm"
)

// Clock reports the current position of the output timeline.
type Clock interface {
	Now() time.Duration
}

// Handle controls one fragment that has been handed to an Output.
// Stop must be safe to call after playback has finished.
type Handle interface {
	Stop()
}

// Output plays buffers at absolute timeline positions. Play must not invoke
// onDone synchronously; onDone fires once when playback ends naturally and
// never for a stopped handle.
type Output interface {
	Clock
	Play(buf *pcm.Buffer, at time.Duration, onDone func()) Handle
}

// Fragment is one decoded unit of inbound synthesized audio.
type Fragment struct {
	Buffer *pcm.Buffer
}

// Duration returns the playback length of the fragment.
func (f Fragment) Duration() time.Duration {
	if f.Buffer == nil {
		return 0
	}
	return f.Buffer.Duration()
}

// Scheduler keeps fragments back to back on the output timeline.
//
// Schedule is meant to be driven by a single goroutine in arrival order.
// Interrupt and completion callbacks may arrive from other goroutines;
// the cursor and active set are only ever touched under the scheduler's lock.
type Scheduler struct {
	mu     sync.Mutex
	out    Output
	cursor time.Duration
	active map[uint64]Handle
	nextID uint64
	log    *slog.Logger
}

// NewScheduler returns a scheduler whose cursor starts at the output's current time.
func NewScheduler(out Output) *Scheduler {
	return &Scheduler{
		out:    out,
		cursor: out.Now(),
		active: make(map[uint64]Handle),
		log:    logger.Component("playback"),
	}
}

// Schedule starts f at max(cursor, now), advances the cursor past it and
// returns the chosen start time.
func (s *Scheduler) Schedule(f Fragment) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	startAt := max(s.cursor, s.out.Now())
	s.nextID++
	id := s.nextID
	h := s.out.Play(f.Buffer, startAt, func() { s.done(id) })
	s.active[id] = h
	s.cursor = startAt + f.Duration()

	s.log.Debug("fragment scheduled",
		"start_at", startAt,
		"duration", f.Duration(),
		"cursor", s.cursor,
		"active", len(s.active))
	return startAt
}

// Interrupt stops every active fragment, clears the active set and resets
// the cursor to zero. It returns the number of fragments stopped.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.active)
	for id, h := range s.active {
		h.Stop()
		delete(s.active, id)
	}
	s.cursor = 0

	s.log.Debug("playback interrupted", "stopped", n)
	return n
}

// Cursor returns the timeline offset at which the next fragment would begin
// if the clock has not passed it.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Active returns the number of fragments scheduled but not yet finished.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// done removes a naturally finished fragment. It is a no-op after Interrupt.
func (s *Scheduler) done(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}
