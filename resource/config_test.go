package resource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPackedTimerRoundTrip(t *testing.T) {
	var zero packedTimer
	assert.False(t, zero.isSet())
	assert.False(t, zero.expired(time.Now()))

	deadline := time.Now().Add(50 * time.Millisecond)
	pt := setTimer(deadline)
	assert.True(t, pt.isSet())
	assert.False(t, pt.expired(deadline.Add(-time.Millisecond)))
	assert.True(t, pt.expired(deadline.Add(time.Millisecond)))
}

func TestConfigurationChangeWaitTimeDefault(t *testing.T) {
	var c Configuration
	assert.Equal(t, DefaultChangeWaitTime, c.changeWaitTime())

	c.ChangeWaitTime = 5 * time.Second
	assert.Equal(t, 5*time.Second, c.changeWaitTime())
}

func TestSingletonAllocatesMonotonically(t *testing.T) {
	s := &Singleton{}
	assert.Equal(t, EntryID(1), s.allocEntryID())
	assert.Equal(t, EntryID(2), s.allocEntryID())
	assert.Equal(t, ContainerID(1), s.allocContainerID())
	assert.Equal(t, uint64(1), s.NextUsageID())
	assert.Equal(t, uint64(2), s.NextUsageID())
	assert.False(t, s.ScanDone())
}
