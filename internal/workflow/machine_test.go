package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type light string

const (
	red    light = "red"
	green  light = "green"
	yellow light = "yellow"
	broken light = "broken"
)

var errNoPower = errors.New("no power")

func newLights() *Machine[light, int] {
	return New[light, int]().
		Allow(red, green, broken).
		Allow(green, yellow).
		AllowSystem(yellow, red).
		Guard(red, green, func(power int) error {
			if power <= 0 {
				return errNoPower
			}
			return nil
		})
}

func TestMachineRequest(t *testing.T) {
	m := newLights()

	require.NoError(t, m.Request(red, green, 1))
	require.ErrorIs(t, m.Request(red, green, 0), errNoPower)
	require.ErrorIs(t, m.Request(red, yellow, 1), ErrInvalidTransition)
	require.ErrorIs(t, m.Request(broken, red, 1), ErrInvalidTransition)
}

func TestMachineSystemEdges(t *testing.T) {
	m := newLights()

	require.ErrorIs(t, m.Request(yellow, red, 1), ErrInvalidTransition)
	require.NoError(t, m.Apply(yellow, red, 1))
}

func TestMachineCan(t *testing.T) {
	m := newLights()

	assert.True(t, m.Can(red, broken))
	assert.True(t, m.Can(yellow, red))
	assert.False(t, m.Can(broken, red))
	assert.False(t, m.Can(green, red))
}
