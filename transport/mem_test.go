package transport

import (
	"testing"
	"time"

	"github.com/opd-ai/midisock/interfaces"
	"github.com/opd-ai/midisock/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openMemPair opens ports "a" and "b" wired to send to and accept from
// each other.
func openMemPair(t *testing.T) (*MemNetwork, *MemPort, *MemPort) {
	t.Helper()
	network := NewMemNetwork()

	a, err := network.Open("a")
	require.NoError(t, err)
	b, err := network.Open("b")
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})

	a.AddDestination("b", b.Addr())
	a.AddSource("b", b.Addr())
	b.AddDestination("a", a.Addr())
	b.AddSource("a", a.Addr())
	require.NoError(t, a.SetActiveDestination(0))
	require.NoError(t, a.SetActiveSource(0))
	require.NoError(t, b.SetActiveDestination(0))
	require.NoError(t, b.SetActiveSource(0))

	return network, a, b
}

func collectBatches(port interfaces.Receiver) <-chan packet.Batch {
	batches := make(chan packet.Batch, 64)
	port.RegisterBatchHandler(func(batch packet.Batch) {
		batches <- batch
	})
	return batches
}

func mustPacket(t *testing.T, payload []byte) packet.Packet {
	t.Helper()
	p, err := packet.New(payload)
	require.NoError(t, err)
	return p
}

func payloads(t *testing.T, batch packet.Batch) [][]byte {
	t.Helper()
	out := make([][]byte, 0, len(batch))
	for _, p := range batch {
		payload, err := p.Payload()
		require.NoError(t, err)
		out = append(out, payload)
	}
	return out
}

func TestMemNetworkOpenDuplicate(t *testing.T) {
	network := NewMemNetwork()
	port, err := network.Open("a")
	require.NoError(t, err)
	defer port.Close()

	_, err = network.Open("a")
	assert.ErrorIs(t, err, ErrPortExists)
}

func TestMemPortDeliversInOrder(t *testing.T) {
	_, a, b := openMemPair(t)
	batches := collectBatches(b)

	want := [][]byte{{0x90, 0x3C, 0x7F}, {0x80, 0x3C, 0x00}, {0xF8}}
	for _, payload := range want {
		require.NoError(t, a.Transmit(mustPacket(t, payload)))
	}

	var got [][]byte
	deadline := time.After(2 * time.Second)
	for len(got) < len(want) {
		select {
		case batch := <-batches:
			assert.NotEmpty(t, batch)
			got = append(got, payloads(t, batch)...)
		case <-deadline:
			t.Fatalf("received %d of %d packets", len(got), len(want))
		}
	}
	assert.Equal(t, want, got)
}

func TestMemPortCoalescesQueuedPackets(t *testing.T) {
	_, a, b := openMemPair(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	batches := make(chan packet.Batch, 4)
	first := true
	b.RegisterBatchHandler(func(batch packet.Batch) {
		if first {
			first = false
			close(entered)
			<-release
		}
		batches <- batch
	})

	require.NoError(t, a.Transmit(mustPacket(t, []byte{0})))
	<-entered

	for i := 1; i <= 5; i++ {
		require.NoError(t, a.Transmit(mustPacket(t, []byte{byte(i)})))
	}
	close(release)

	firstBatch := <-batches
	assert.Len(t, firstBatch, 1)

	select {
	case second := <-batches:
		assert.Equal(t, [][]byte{{1}, {2}, {3}, {4}, {5}}, payloads(t, second))
	case <-time.After(2 * time.Second):
		t.Fatal("queued packets were not delivered")
	}
}

func TestMemPortCopiesStorage(t *testing.T) {
	_, a, b := openMemPair(t)
	batches := collectBatches(b)

	p := mustPacket(t, []byte{1, 2, 3})
	require.NoError(t, a.Transmit(p))
	p.Data[0] = 0xFF

	batch := <-batches
	assert.Equal(t, [][]byte{{1, 2, 3}}, payloads(t, batch))
}

func TestMemPortDropsInactiveSource(t *testing.T) {
	network, _, b := openMemPair(t)
	batches := collectBatches(b)

	stranger, err := network.Open("stranger")
	require.NoError(t, err)
	defer stranger.Close()
	stranger.AddDestination("b", b.Addr())
	require.NoError(t, stranger.SetActiveDestination(0))

	require.NoError(t, stranger.Transmit(mustPacket(t, []byte{0x90})))

	assert.Never(t, func() bool { return len(batches) > 0 }, 200*time.Millisecond, 10*time.Millisecond)
}

func TestMemPortTransmitErrors(t *testing.T) {
	network := NewMemNetwork()
	a, err := network.Open("a")
	require.NoError(t, err)

	err = a.Transmit(mustPacket(t, []byte{1}))
	assert.ErrorIs(t, err, ErrNoDestination)

	a.AddDestination("gone", MemAddr("gone"))
	require.NoError(t, a.SetActiveDestination(0))
	err = a.Transmit(mustPacket(t, []byte{1}))
	assert.ErrorIs(t, err, ErrNoDestination)

	err = a.Transmit(packet.Packet{Data: make([]byte, 4), Length: 9})
	assert.ErrorIs(t, err, packet.ErrMalformedPacket)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	err = a.Transmit(mustPacket(t, []byte{1}))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemPortClosedPeerIsUnreachable(t *testing.T) {
	_, a, b := openMemPair(t)
	require.NoError(t, b.Close())

	err := a.Transmit(mustPacket(t, []byte{1}))
	assert.ErrorIs(t, err, ErrNoDestination)
}
