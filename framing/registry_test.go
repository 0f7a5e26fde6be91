package framing

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/opd-ai/midisock/packet"
	"github.com/stretchr/testify/assert"
)

func TestRegistryInitiallyEmpty(t *testing.T) {
	r := &Registry{}
	assert.Nil(t, r.Load())
	assert.False(t, r.Deliver(packet.Message{1}))
}

func TestRegistryLastAttachWins(t *testing.T) {
	r := &Registry{}
	receiver := NewReceiver(r)

	var first, second atomic.Int32
	r.Attach(func(packet.Message) { first.Add(1) })
	r.Attach(func(packet.Message) { second.Add(1) })

	receiver.HandleBatch(packet.Batch{paddedPacket([]byte{0x90})})

	assert.Zero(t, first.Load(), "replaced handler must not run")
	assert.Equal(t, int32(1), second.Load())
}

func TestRegistryAttachNilClears(t *testing.T) {
	r := &Registry{}
	r.Attach(func(packet.Message) {})
	r.Attach(nil)

	assert.Nil(t, r.Load())
	assert.False(t, r.Deliver(packet.Message{1}))
}

// TestRegistryConcurrentAttachAndDelivery exercises Attach racing with
// deliveries from a separate goroutine. Run with -race.
func TestRegistryConcurrentAttachAndDelivery(t *testing.T) {
	r := &Registry{}
	receiver := NewReceiver(r)

	const (
		handlers   = 16
		iterations = 2000
	)

	var counts [handlers]atomic.Int64
	makeHandler := func(id int) MessageHandler {
		return func(msg packet.Message) {
			if len(msg) != 3 {
				t.Errorf("handler %d got %d bytes", id, len(msg))
			}
			counts[id].Add(1)
		}
	}

	batch := packet.Batch{paddedPacket([]byte{1}), paddedPacket([]byte{2, 3})}

	var attacher, deliverers sync.WaitGroup
	stop := make(chan struct{})

	attacher.Add(1)
	go func() {
		defer attacher.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%5 == 0 {
				r.Attach(nil)
			} else {
				r.Attach(makeHandler(i % handlers))
			}
		}
	}()

	for d := 0; d < 4; d++ {
		deliverers.Add(1)
		go func() {
			defer deliverers.Done()
			for i := 0; i < iterations; i++ {
				receiver.HandleBatch(batch)
			}
		}()
	}

	deliverers.Wait()
	close(stop)
	attacher.Wait()

	var total int64
	for i := range counts {
		total += counts[i].Load()
	}
	stats := receiver.Stats()
	assert.Equal(t, uint64(total), stats.Delivered)
	assert.Equal(t, uint64(4*iterations), stats.Delivered+stats.Dropped)
	assert.Zero(t, stats.Malformed)
}
