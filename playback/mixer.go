package playback

import (
	"sync"
	"time"

	"github.com/AltairaLabs/livevoice/pcm"
)

// Mixer is a software output timeline. It renders mono float samples at a
// fixed rate and doubles as the playback Clock: Now is the number of frames
// rendered so far. A device output stream drives it by calling Render from
// its callback.
type Mixer struct {
	mu        sync.Mutex
	rate      int
	rendered  int64
	lastEnd   int64
	lastEndAt time.Duration // exact timeline end of the most recent voice
	voices    map[uint64]*voice
	nextID    uint64
}

type voice struct {
	start   int64
	samples []float32
	onDone  func()
}

// NewMixer returns an empty mixer running at sampleRate.
func NewMixer(sampleRate int) *Mixer {
	return &Mixer{
		rate:   sampleRate,
		voices: make(map[uint64]*voice),
	}
}

// SampleRate returns the render rate.
func (m *Mixer) SampleRate() int {
	return m.rate
}

// Now returns the timeline position of the next frame to be rendered.
func (m *Mixer) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return pcm.FramesDuration(int(m.rendered), m.rate)
}

// Active returns the number of voices still waiting to finish.
func (m *Mixer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Play queues buf to start at timeline position at. Multichannel buffers are
// averaged to mono and other sample rates are converted to the mixer's rate.
// A start already in the past begins at the next rendered frame. A start at
// the previous voice's end, or within one frame of it, begins exactly where
// that voice ends so back-to-back fragments stay sample-contiguous.
func (m *Mixer) Play(buf *pcm.Buffer, at time.Duration, onDone func()) Handle {
	var (
		samples []float32
		dur     time.Duration
	)
	if buf != nil {
		dur = buf.Duration()
		samples = buf.Mono()
		if buf.SampleRate != m.rate {
			if resampled, err := pcm.Resample(samples, buf.SampleRate, m.rate); err == nil {
				samples = fitLength(resampled, int(m.frameAt(at+dur)-m.frameAt(at)))
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.frameAt(at)
	if m.lastEnd >= m.rendered {
		if d := start - m.lastEnd; at == m.lastEndAt || (d >= -1 && d <= 1) {
			start = m.lastEnd
		}
	}
	if start < m.rendered {
		start = m.rendered
	}
	m.lastEnd = start + int64(len(samples))
	m.lastEndAt = at + dur

	m.nextID++
	id := m.nextID
	m.voices[id] = &voice{start: start, samples: samples, onDone: onDone}
	return &mixerHandle{m: m, id: id}
}

// fitLength trims samples or pads them with their last value to n frames.
// Resampled fragments are sized to the frames their timeline span covers so
// rounding does not accumulate across a run of fragments.
func fitLength(samples []float32, n int) []float32 {
	switch {
	case n <= 0:
		return samples[:0]
	case len(samples) >= n:
		return samples[:n]
	case len(samples) == 0:
		return make([]float32, n)
	}
	last := samples[len(samples)-1]
	for len(samples) < n {
		samples = append(samples, last)
	}
	return samples
}

func (m *Mixer) frameAt(at time.Duration) int64 {
	if at <= 0 {
		return 0
	}
	return (int64(at)*int64(m.rate) + int64(time.Second)/2) / int64(time.Second)
}

// Render mixes the next len(out) frames into out, advances the clock and
// fires onDone for every voice that finished within the block. Output is
// clipped to [-1, 1].
func (m *Mixer) Render(out []float32) {
	m.mu.Lock()
	from := m.rendered
	to := from + int64(len(out))
	clear(out)

	var finished []func()
	for id, v := range m.voices {
		end := v.start + int64(len(v.samples))
		lo, hi := max(v.start, from), min(end, to)
		for f := lo; f < hi; f++ {
			out[f-from] += v.samples[f-v.start]
		}
		if end <= to {
			delete(m.voices, id)
			if v.onDone != nil {
				finished = append(finished, v.onDone)
			}
		}
	}
	for i, s := range out {
		out[i] = min(max(s, -1), 1)
	}
	m.rendered = to
	m.mu.Unlock()

	for _, fn := range finished {
		fn()
	}
}

// Reset drops every voice without firing callbacks.
func (m *Mixer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.voices)
}

type mixerHandle struct {
	m  *Mixer
	id uint64
}

// Stop silences the voice immediately. Its onDone is not called.
func (h *mixerHandle) Stop() {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	delete(h.m.voices, h.id)
}
