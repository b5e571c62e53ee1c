package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errProbe = errors.New("probe failed")

func probe(ok bool) func() error {
	return func() error {
		if ok {
			return nil
		}
		return errProbe
	}
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		settings      Settings
		probes        []bool
		expectedState State
	}{
		{
			name:          "stays closed on healthy probes",
			settings:      Settings{Interval: time.Minute, Timeout: time.Minute},
			probes:        []bool{true, true, true},
			expectedState: StateClosed,
		},
		{
			name: "opens after two consecutive failures",
			settings: Settings{
				Interval:    time.Minute,
				Timeout:     time.Minute,
				ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 2 },
			},
			probes:        []bool{false, false},
			expectedState: StateOpen,
		},
		{
			name: "a success in between resets the streak",
			settings: Settings{
				Interval:    time.Minute,
				Timeout:     time.Minute,
				ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 2 },
			},
			probes:        []bool{false, true, false},
			expectedState: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := New("inst_test", tt.settings)
			for _, ok := range tt.probes {
				_ = breaker.Do(probe(ok))
			}
			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	breaker := New("test", Settings{Interval: time.Minute, Timeout: time.Minute})

	require.NoError(t, breaker.Do(probe(true)))
	counts := breaker.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)

	assert.ErrorIs(t, breaker.Do(probe(false)), errProbe)
	counts = breaker.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)
}

func TestBreakerRejectsWhileOpen(t *testing.T) {
	breaker := New("test", Settings{Interval: time.Minute, Timeout: time.Minute})
	breaker.Trip()

	calls := 0
	err := breaker.Do(func() error { calls++; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsRejection(err))
	assert.Equal(t, 0, calls)

	breaker.Reset()
	assert.Equal(t, StateClosed, breaker.State())
	assert.NoError(t, breaker.Do(probe(true)))
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	breaker := New("test", Settings{
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Millisecond,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 2 },
	})

	_ = breaker.Do(probe(false))
	_ = breaker.Do(probe(false))
	require.Equal(t, StateOpen, breaker.State())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, breaker.State())

	require.NoError(t, breaker.Do(probe(true)))
	require.NoError(t, breaker.Do(probe(true)))
	assert.Equal(t, StateClosed, breaker.State())
}

func TestOnStateChange(t *testing.T) {
	var transitions []string
	breaker := New("inst_1", Settings{
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 2 },
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	_ = breaker.Do(probe(false))
	_ = breaker.Do(probe(false))

	assert.Equal(t, []string{"inst_1:closed->open"}, transitions)
}

func TestIsSuccessful(t *testing.T) {
	errMiss := errors.New("element missing")
	breaker := New("test", Settings{
		Interval:     time.Minute,
		Timeout:      time.Minute,
		ReadyToTrip:  func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
		IsSuccessful: func(err error) bool { return err == nil || errors.Is(err, errMiss) },
	})

	assert.ErrorIs(t, breaker.Do(func() error { return errMiss }), errMiss)
	assert.Equal(t, StateClosed, breaker.State())
}

func TestCall(t *testing.T) {
	breaker := New("test", Settings{})

	n, err := Call(breaker, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	s, err := Call(breaker, func() (string, error) { return "", errProbe })
	assert.ErrorIs(t, err, errProbe)
	assert.Empty(t, s)
}
