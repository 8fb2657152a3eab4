package line

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
)

func TestSimAcquire(t *testing.T) {
	s := NewSim()
	l, err := s.Acquire(24)
	require.NoError(t, err)
	assert.Equal(t, gpio.Low, s.Level(24))

	require.NoError(t, l.Out(gpio.High))
	assert.Equal(t, gpio.High, s.Level(24))
	assert.Equal(t, gpio.High, s.Pin(24).Read())

	_, err = s.Acquire(24)
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, s.Close())
	assert.Nil(t, s.Pin(24))

	_, err = s.Acquire(24)
	assert.NoError(t, err, "pins are released on close")
}

func TestOpen(t *testing.T) {
	p, err := Open("SIM", "")
	require.NoError(t, err)
	assert.IsType(t, &Sim{}, p)

	_, err = Open("bitbang", "")
	assert.Error(t, err)
}
