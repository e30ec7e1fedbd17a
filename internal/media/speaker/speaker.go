// Package speaker plays media handles on the system audio device.
package speaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog"
)

const (
	// DefaultSampleRate is the device rate; songs at other rates are resampled.
	DefaultSampleRate = beep.SampleRate(44100)
	// DefaultBufferSize trades latency for underrun safety.
	DefaultBufferSize = 250 * time.Millisecond
)

// Speaker is the beep speaker as a media output and an exclusive audio
// session. The device is opened on first Activate and suspended on
// Deactivate.
type Speaker struct {
	rate       beep.SampleRate
	bufferSize time.Duration
	logger     zerolog.Logger

	mu          sync.Mutex
	initialized bool
	active      bool
}

// New returns a speaker that will open the device at rate.
func New(rate beep.SampleRate, bufferSize time.Duration, logger zerolog.Logger) *Speaker {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Speaker{rate: rate, bufferSize: bufferSize, logger: logger}
}

func (s *Speaker) SampleRate() beep.SampleRate { return s.rate }

func (s *Speaker) Play(st beep.Streamer) { speaker.Play(st) }

func (s *Speaker) Lock() { speaker.Lock() }

func (s *Speaker) Unlock() { speaker.Unlock() }

// Activate opens or resumes the audio device.
func (s *Speaker) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return nil
	}
	if !s.initialized {
		if err := speaker.Init(s.rate, s.rate.N(s.bufferSize)); err != nil {
			return fmt.Errorf("initializing speaker: %w", err)
		}
		s.initialized = true
		s.logger.Debug().Int("sample_rate", int(s.rate)).Dur("buffer", s.bufferSize).Msg("speaker initialized")
	} else if err := speaker.Resume(); err != nil {
		return fmt.Errorf("resuming speaker: %w", err)
	}
	s.active = true
	return nil
}

// Deactivate drops everything queued and suspends the device.
func (s *Speaker) Deactivate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil
	}
	s.active = false
	speaker.Clear()
	if err := speaker.Suspend(); err != nil {
		return fmt.Errorf("suspending speaker: %w", err)
	}
	return nil
}
