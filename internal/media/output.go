package media

import (
	"context"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

// Output mixes playing streamers into an audio device. Lock and Unlock guard
// every streamer it is playing.
type Output interface {
	SampleRate() beep.SampleRate
	Play(s beep.Streamer)
	Lock()
	Unlock()
}

const nullChunk = 512

// NullOutput consumes audio without producing sound. Playback only advances
// when Advance or Run pulls samples through it.
type NullOutput struct {
	rate beep.SampleRate

	mu    sync.Mutex
	mixer beep.Mixer
}

// NewNullOutput returns a silent output running at rate.
func NewNullOutput(rate beep.SampleRate) *NullOutput {
	return &NullOutput{rate: rate}
}

func (o *NullOutput) SampleRate() beep.SampleRate { return o.rate }

func (o *NullOutput) Play(s beep.Streamer) {
	o.mu.Lock()
	o.mixer.Add(s)
	o.mu.Unlock()
}

func (o *NullOutput) Lock()   { o.mu.Lock() }
func (o *NullOutput) Unlock() { o.mu.Unlock() }

// Advance pulls d worth of samples through every playing streamer.
func (o *NullOutput) Advance(d time.Duration) {
	n := o.rate.N(d)
	buf := make([][2]float64, nullChunk)
	o.mu.Lock()
	defer o.mu.Unlock()
	for n > 0 {
		k := min(n, len(buf))
		o.mixer.Stream(buf[:k])
		n -= k
	}
}

// Run advances playback in real time until ctx is done.
func (o *NullOutput) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			o.Advance(now.Sub(last))
			last = now
		}
	}
}
