package metrics

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadProcessSelf(t *testing.T) {
	s, err := ReadProcess(int32(os.Getpid()))
	require.NoError(t, err)
	assert.Equal(t, int32(os.Getpid()), s.PID)
	assert.Greater(t, s.RSS, uint64(0))
	assert.False(t, s.Timestamp.IsZero())
}

func TestReadProcessMissing(t *testing.T) {
	_, err := ReadProcess(-1)
	assert.Error(t, err)
}

func TestSamplerCollectAndForget(t *testing.T) {
	s := NewSampler(SamplerConfig{MaxHistory: 3}, nil)
	self := int32(os.Getpid())

	for i := 0; i < 5; i++ {
		s.Collect(map[string]int32{"worker": self})
	}
	latest, ok := s.Latest("worker")
	require.True(t, ok)
	assert.Equal(t, self, latest.PID)
	assert.Len(t, s.History("worker"), 3, "history is bounded")

	s.Collect(map[string]int32{})
	_, ok = s.Latest("worker")
	assert.False(t, ok)
	assert.Nil(t, s.History("worker"))
}

func TestRingOrder(t *testing.T) {
	r := newRing(3)
	_, ok := r.last()
	assert.False(t, ok)
	for i := int32(1); i <= 5; i++ {
		r.push(Sample{PID: i})
	}
	items := r.items()
	require.Len(t, items, 3)
	assert.Equal(t, []int32{3, 4, 5}, []int32{items[0].PID, items[1].PID, items[2].PID})
	last, _ := r.last()
	assert.Equal(t, int32(5), last.PID)
}

func TestSamplerDefaultsAndStop(t *testing.T) {
	s := NewSampler(SamplerConfig{}, nil)
	assert.Equal(t, 15*time.Second, s.interval)
	assert.Equal(t, 60, s.maxHistory)
	s.Stop()
	s.Stop()
}
