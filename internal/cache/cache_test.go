package cache

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/topabomb/BatteryMaster/internal/model"
)

func reading(ts int64, state model.BatteryState) model.Reading {
	return model.Reading{
		Battery: model.BatterySnapshot{Timestamp: ts, State: state, Percentage: 80},
		System:  model.SystemSnapshot{CPULoad: 0.3},
	}
}

func TestNew(t *testing.T) {
	c := New()
	snap := c.Snapshot()
	assert.Nil(t, snap.Reading)
	assert.Zero(t, snap.Samples)
	assert.False(t, snap.StartedAt.IsZero())
	assert.True(t, c.Stale(time.Hour))
}

func TestUpdate(t *testing.T) {
	c := New()
	c.Update(reading(100, model.StateCharging), model.ChangeSet{Timestamp: 100, History: true})

	snap := c.Snapshot()
	require.NotNil(t, snap.Reading)
	assert.Equal(t, int64(100), snap.Reading.Battery.Timestamp)
	assert.True(t, snap.LastChangeSet.History)
	assert.Equal(t, int64(1), snap.Samples)
	assert.False(t, c.Stale(time.Minute))
}

func TestUpdate_KeepsLastTransition(t *testing.T) {
	c := New()
	tr := &model.Transition{From: model.StateCharging, To: model.StateDischarging, At: 5}
	c.Update(reading(5, model.StateDischarging), model.ChangeSet{Transition: tr})
	c.Update(reading(6, model.StateDischarging), model.ChangeSet{})

	snap := c.Snapshot()
	require.NotNil(t, snap.LastTransition)
	assert.Equal(t, model.StateDischarging, snap.LastTransition.To)
	assert.Nil(t, snap.LastChangeSet.Transition)
}

func TestUpdate_CountsDropped(t *testing.T) {
	c := New()
	c.Update(reading(1, model.StateFull), model.ChangeSet{Dropped: true})
	c.Update(reading(2, model.StateFull), model.ChangeSet{})

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.Samples)
	assert.Equal(t, int64(1), snap.Dropped)
}

func TestRecordError(t *testing.T) {
	c := New()
	c.RecordError(errors.New("read failed"))

	snap := c.Snapshot()
	assert.Equal(t, int64(1), snap.Failures)
	assert.Equal(t, "read failed", snap.LastError)

	c.Update(reading(1, model.StateFull), model.ChangeSet{})
	assert.Empty(t, c.Snapshot().LastError)
}

func TestSnapshot_IsCopy(t *testing.T) {
	c := New()
	c.Update(reading(1, model.StateFull), model.ChangeSet{})

	snap := c.Snapshot()
	snap.Reading.Battery.Percentage = 1

	assert.Equal(t, float32(80), c.Snapshot().Reading.Battery.Percentage)
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c.Update(reading(int64(i), model.StateCharging), model.ChangeSet{})
		}(i)
		go func() {
			defer wg.Done()
			_ = c.Snapshot()
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(20), c.Snapshot().Samples)
}
