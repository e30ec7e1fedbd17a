package speaker

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewDefaults(t *testing.T) {
	s := New(0, 0, zerolog.Nop())
	assert.Equal(t, DefaultSampleRate, s.SampleRate())
	assert.Equal(t, DefaultBufferSize, s.bufferSize)

	s = New(48000, 0, zerolog.Nop())
	assert.EqualValues(t, 48000, s.SampleRate())
}

func TestDeactivateWithoutActivate(t *testing.T) {
	s := New(DefaultSampleRate, DefaultBufferSize, zerolog.Nop())
	assert.NoError(t, s.Deactivate())
}
