// Package transcript merges the user and remote transcription delta streams
// into one ordered, append-only conversation log.
package transcript

import (
	"iter"
	"slices"
	"sync"
)

// Speaker identifies which side of the conversation a line belongs to.
type Speaker int

const (
	// User is the local speaker captured by the microphone.
	User Speaker = iota
	// Remote is the synthesized voice of the remote model.
	Remote
)

// String returns "USER" or "REMOTE".
func (s Speaker) String() string {
	switch s {
	case User:
		return "USER"
	case Remote:
		return "REMOTE"
	default:
		return "UNKNOWN"
	}
}

// Default display labels.
const (
	DefaultUserLabel   = "You"
	DefaultRemoteLabel = "Lumina"
)

// Line is one speaker turn. Lines handed out by an Aggregator are copies and
// never change afterwards.
type Line struct {
	Speaker Speaker
	Text    string
}

// String renders the line with the default labels, e.g. "You: hello".
func (l Line) String() string {
	return l.Format(DefaultUserLabel, DefaultRemoteLabel)
}

// Format renders the line with custom speaker labels.
func (l Line) Format(userLabel, remoteLabel string) string {
	label := userLabel
	if l.Speaker == Remote {
		label = remoteLabel
	}
	return label + ": " + l.Text
}

// AppendFunc observes every delta after it has been applied. newLine reports
// whether the delta started a new line.
type AppendFunc func(speaker Speaker, delta string, newLine bool)

// Aggregator coalesces consecutive same-speaker deltas into one line and
// starts a new line whenever the speaker changes. It is safe for concurrent
// use: appends from the two delivery streams serialize on an internal lock
// and readers only ever see copies.
type Aggregator struct {
	mu       sync.Mutex
	lines    []Line
	onAppend AppendFunc
}

// NewAggregator returns an empty transcript. onAppend may be nil.
func NewAggregator(onAppend AppendFunc) *Aggregator {
	return &Aggregator{onAppend: onAppend}
}

// AppendUser appends a delta from the user's transcription stream.
func (a *Aggregator) AppendUser(delta string) {
	a.append(User, delta)
}

// AppendRemote appends a delta from the remote transcription stream.
func (a *Aggregator) AppendRemote(delta string) {
	a.append(Remote, delta)
}

// Append appends a delta for the given speaker.
func (a *Aggregator) Append(speaker Speaker, delta string) {
	a.append(speaker, delta)
}

func (a *Aggregator) append(speaker Speaker, delta string) {
	a.mu.Lock()
	newLine := len(a.lines) == 0 || a.lines[len(a.lines)-1].Speaker != speaker
	if newLine {
		a.lines = append(a.lines, Line{Speaker: speaker, Text: delta})
	} else {
		a.lines[len(a.lines)-1].Text += delta
	}
	a.mu.Unlock()

	if a.onAppend != nil {
		a.onAppend(speaker, delta, newLine)
	}
}

// Snapshot returns a copy of the transcript so far.
func (a *Aggregator) Snapshot() []Line {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.lines)
}

// Lines returns a lazy sequence over the transcript. Each iteration takes a
// fresh snapshot, so the sequence can be ranged over repeatedly and never
// holds the lock while the caller's loop body runs.
func (a *Aggregator) Lines() iter.Seq[Line] {
	return func(yield func(Line) bool) {
		for _, l := range a.Snapshot() {
			if !yield(l) {
				return
			}
		}
	}
}

// Len returns the number of lines.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.lines)
}

// Reset discards every line. It is the only operation that removes lines.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lines = nil
}
