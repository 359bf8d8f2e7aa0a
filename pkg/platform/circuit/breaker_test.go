package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome int

const (
	fail outcome = iota
	succeed
)

// replay feeds outcomes into the breaker and returns the state after each.
func replay(b *Breaker, outcomes ...outcome) []State {
	states := make([]State, 0, len(outcomes))
	for _, o := range outcomes {
		if o == fail {
			b.RecordFailure()
		} else {
			b.RecordSuccess()
		}
		states = append(states, b.State())
	}
	return states
}

func TestBreaker_Transitions(t *testing.T) {
	tests := []struct {
		name     string
		opts     []Option
		outcomes []outcome
		want     []State
	}{
		{
			name:     "opens on the threshold failure",
			opts:     []Option{WithFailureThreshold(3)},
			outcomes: []outcome{fail, fail, fail},
			want:     []State{StateClosed, StateClosed, StateOpen},
		},
		{
			name:     "a success while closed resets the failure streak",
			opts:     []Option{WithFailureThreshold(3)},
			outcomes: []outcome{fail, fail, succeed, fail, fail, fail},
			want:     []State{StateClosed, StateClosed, StateClosed, StateClosed, StateClosed, StateOpen},
		},
		{
			name:     "closes after consecutive successes",
			opts:     []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			outcomes: []outcome{fail, succeed, succeed},
			want:     []State{StateOpen, StateOpen, StateClosed},
		},
		{
			name:     "a failure while open restarts the success streak",
			opts:     []Option{WithFailureThreshold(1), WithSuccessThreshold(3)},
			outcomes: []outcome{fail, succeed, succeed, fail, succeed, succeed, succeed},
			want:     []State{StateOpen, StateOpen, StateOpen, StateOpen, StateOpen, StateOpen, StateClosed},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("audit-stream", tt.opts...)
			require.Equal(t, StateClosed, b.State())
			assert.Equal(t, tt.want, replay(b, tt.outcomes...))
		})
	}
}

func TestBreaker_ReportsStateChanges(t *testing.T) {
	b := New("audit-stream", WithFailureThreshold(1), WithSuccessThreshold(1))

	fallback, change := b.RecordFailure()
	assert.True(t, fallback)
	assert.True(t, change.Opened)

	fallback, change = b.RecordFailure()
	assert.True(t, fallback, "still open")
	assert.False(t, change.Opened, "no second transition")

	primary, change := b.RecordSuccess()
	assert.True(t, primary)
	assert.True(t, change.Closed)
}

func TestBreaker_Reset(t *testing.T) {
	b := New("audit-stream", WithFailureThreshold(1))
	b.RecordFailure()
	require.True(t, b.IsOpen())

	b.Reset()
	assert.False(t, b.IsOpen())
	assert.Equal(t, "audit-stream", b.Name())
}

func TestBreaker_AllowProbesOncePerCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := New("audit-stream", WithFailureThreshold(1), WithCooldown(time.Minute), WithClock(func() time.Time { return now }))

	assert.True(t, b.Allow())
	b.RecordFailure()
	assert.False(t, b.Allow(), "open breaker rejects inside cooldown")

	now = now.Add(time.Minute)
	assert.True(t, b.Allow(), "one probe after cooldown")
	assert.False(t, b.Allow(), "second probe waits for the next window")
}
