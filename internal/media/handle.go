package media

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"

	"github.com/justestif/go-reels-feed/internal/buffer"
)

// StatusInterval is how often a playing handle reports progress.
const StatusInterval = 250 * time.Millisecond

const resampleQuality = 4

// Handle is a decoded song held in memory, played through an Output.
type Handle struct {
	output   Output
	streamer beep.StreamSeekCloser
	format   beep.Format

	// gen identifies the current playback run so that a late end callback
	// from an earlier run cannot mark this one finished.
	gen      atomic.Uint64
	finished atomic.Bool

	mu       sync.Mutex
	ctrl     *beep.Ctrl
	released bool
	onStatus func(buffer.Status)
	stopTick chan struct{}
}

func newHandle(output Output, streamer beep.StreamSeekCloser, format beep.Format) *Handle {
	return &Handle{output: output, streamer: streamer, format: format}
}

// Play starts playback from the beginning, replacing any earlier run.
func (h *Handle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return buffer.ErrReleased
	}
	return h.playLocked()
}

func (h *Handle) playLocked() error {
	h.output.Lock()
	h.detachLocked()
	err := h.streamer.Seek(0)
	h.output.Unlock()
	if err != nil {
		return fmt.Errorf("rewinding stream: %w", err)
	}

	var s beep.Streamer = h.streamer
	if rate := h.output.SampleRate(); rate != h.format.SampleRate {
		s = beep.Resample(resampleQuality, h.format.SampleRate, rate, s)
	}
	gen := h.gen.Add(1)
	h.finished.Store(false)
	ctrl := &beep.Ctrl{Streamer: beep.Seq(s, beep.Callback(func() {
		if h.gen.Load() == gen {
			h.finished.Store(true)
		}
	}))}
	h.ctrl = ctrl
	h.output.Play(ctrl)
	h.startTickLocked()
	return nil
}

// Stop ends playback and rewinds.
func (h *Handle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return buffer.ErrReleased
	}
	h.output.Lock()
	h.detachLocked()
	err := h.streamer.Seek(0)
	h.output.Unlock()
	h.stopTickLocked()
	if err != nil {
		return fmt.Errorf("rewinding stream: %w", err)
	}
	return nil
}

func (h *Handle) Pause() error {
	return h.setPaused(true)
}

// Resume continues a paused run, or starts one if the handle never played.
func (h *Handle) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return buffer.ErrReleased
	}
	if h.ctrl == nil || h.finished.Load() {
		return h.playLocked()
	}
	h.output.Lock()
	h.ctrl.Paused = false
	h.output.Unlock()
	return nil
}

func (h *Handle) setPaused(paused bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return buffer.ErrReleased
	}
	if h.ctrl == nil {
		return nil
	}
	h.output.Lock()
	h.ctrl.Paused = paused
	h.output.Unlock()
	return nil
}

// Seek moves the play position, clamped to the stream.
func (h *Handle) Seek(pos time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return buffer.ErrReleased
	}
	h.output.Lock()
	defer h.output.Unlock()
	n := h.format.SampleRate.N(pos)
	n = max(0, min(n, h.streamer.Len()-1))
	if err := h.streamer.Seek(n); err != nil {
		return fmt.Errorf("seeking to %s: %w", pos, err)
	}
	return nil
}

func (h *Handle) Status() buffer.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return buffer.Status{}
	}
	h.output.Lock()
	defer h.output.Unlock()
	return buffer.Status{
		Position: h.format.SampleRate.D(h.streamer.Position()),
		Duration: h.format.SampleRate.D(h.streamer.Len()),
		Playing:  h.ctrl != nil && !h.ctrl.Paused && !h.finished.Load(),
	}
}

func (h *Handle) SetStatusCallback(fn func(buffer.Status)) {
	h.mu.Lock()
	h.onStatus = fn
	h.mu.Unlock()
}

// Release stops playback and frees the decoded stream. A second call
// returns buffer.ErrReleased.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return buffer.ErrReleased
	}
	h.released = true
	h.output.Lock()
	h.detachLocked()
	h.output.Unlock()
	h.stopTickLocked()
	h.onStatus = nil
	if err := h.streamer.Close(); err != nil {
		return fmt.Errorf("closing stream: %w", err)
	}
	return nil
}

// detachLocked drains the current run so the output drops it. Callers hold
// both locks.
func (h *Handle) detachLocked() {
	if h.ctrl != nil {
		h.ctrl.Streamer = nil
		h.ctrl = nil
	}
	h.gen.Add(1)
}

func (h *Handle) startTickLocked() {
	if h.stopTick != nil {
		return
	}
	stop := make(chan struct{})
	h.stopTick = stop
	go h.tick(stop)
}

func (h *Handle) stopTickLocked() {
	if h.stopTick != nil {
		close(h.stopTick)
		h.stopTick = nil
	}
}

func (h *Handle) tick(stop <-chan struct{}) {
	t := time.NewTicker(StatusInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			h.mu.Lock()
			fn := h.onStatus
			h.mu.Unlock()
			if fn != nil {
				fn(h.Status())
			}
		}
	}
}
