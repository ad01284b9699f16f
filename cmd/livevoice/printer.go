package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/AltairaLabs/livevoice/transcript"
)

// transcriptPrinter writes transcription deltas as they arrive, starting a
// labelled line whenever the speaker changes.
type transcriptPrinter struct {
	mu          sync.Mutex
	w           io.Writer
	userLabel   string
	remoteLabel string
	open        bool
}

func newTranscriptPrinter(w io.Writer, userLabel, remoteLabel string) *transcriptPrinter {
	return &transcriptPrinter{w: w, userLabel: userLabel, remoteLabel: remoteLabel}
}

// Append matches transcript.AppendFunc.
func (p *transcriptPrinter) Append(speaker transcript.Speaker, delta string, newLine bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if newLine || !p.open {
		if p.open {
			fmt.Fprintln(p.w)
		}
		fmt.Fprintf(p.w, "%s: ", p.label(speaker))
		p.open = true
	}
	fmt.Fprint(p.w, delta)
}

// Finish terminates the last line.
func (p *transcriptPrinter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		fmt.Fprintln(p.w)
		p.open = false
	}
}

func (p *transcriptPrinter) label(s transcript.Speaker) string {
	if s == transcript.User {
		return p.userLabel
	}
	return p.remoteLabel
}
