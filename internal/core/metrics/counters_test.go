package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountersSnapshot(t *testing.T) {
	c := NewCounters()

	c.BroadcastSent()
	c.DatagramReceived()
	c.DatagramReceived()
	c.DatagramDropped()
	c.HandshakeStarted()
	c.HandshakeFailed()
	c.LinkAdded()
	c.LinkAdded()
	c.LinkRemoved()

	s := c.Snapshot()
	assert.Equal(t, int64(1), s.BroadcastsSent)
	assert.Equal(t, int64(2), s.DatagramsReceived)
	assert.Equal(t, int64(1), s.DatagramsDropped)
	assert.Equal(t, int64(1), s.HandshakesStarted)
	assert.Equal(t, int64(1), s.HandshakesFailed)
	assert.Equal(t, int64(1), s.LinksActive)
	assert.Equal(t, int64(2), s.LinksTotal)
}

func TestCountersConcurrent(t *testing.T) {
	c := NewCounters()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.DatagramReceived()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(8000), c.Snapshot().DatagramsReceived)
}
