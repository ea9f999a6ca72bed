package metaapi

import (
	"container/heap"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packetWithSeq(accountID string, seq int64) Packet {
	return Packet{
		"type":           "update",
		"accountId":      accountID,
		"sequenceNumber": seq,
	}
}

func TestPacketOrdererPassesInOrderPacketsThrough(t *testing.T) {
	o := NewPacketOrderer(nil, zerolog.Nop())
	out := o.RestoreOrder(packetWithSeq("acct1", 1))
	require.Len(t, out, 1)

	out = o.RestoreOrder(packetWithSeq("acct1", 2))
	require.Len(t, out, 1)
}

func TestPacketOrdererBuffersAndFlushesOutOfOrderPackets(t *testing.T) {
	o := NewPacketOrderer(nil, zerolog.Nop())

	// Seed the baseline with seq 4, so the next expected is 5.
	first := o.RestoreOrder(packetWithSeq("acct1", 4))
	require.Len(t, first, 1)

	// 7 and 6 arrive before 5: both should buffer.
	assert.Empty(t, o.RestoreOrder(packetWithSeq("acct1", 7)))
	assert.Empty(t, o.RestoreOrder(packetWithSeq("acct1", 6)))

	// 5 arrives: 5, 6, 7 should all flush in order.
	out := o.RestoreOrder(packetWithSeq("acct1", 5))
	require.Len(t, out, 3)
	for i, p := range out {
		seq, _ := p.SequenceNumber()
		assert.Equal(t, int64(5+i), seq)
	}
}

func TestPacketOrdererDropsDuplicates(t *testing.T) {
	o := NewPacketOrderer(nil, zerolog.Nop())
	o.RestoreOrder(packetWithSeq("acct1", 10))
	o.RestoreOrder(packetWithSeq("acct1", 11))

	out := o.RestoreOrder(packetWithSeq("acct1", 10))
	assert.Empty(t, out, "a sequence number below the expected baseline is a duplicate")
}

func TestPacketOrdererPassesUnsequencedPacketsThrough(t *testing.T) {
	o := NewPacketOrderer(nil, zerolog.Nop())
	p := Packet{"type": "authenticated", "accountId": "acct1"}
	out := o.RestoreOrder(p)
	require.Len(t, out, 1)
	assert.Equal(t, p, out[0])
}

func TestPacketOrdererTriggersGapRecoveryAfterTimeout(t *testing.T) {
	var mu sync.Mutex
	var recovered string

	o := NewPacketOrderer(func(accountID string) {
		mu.Lock()
		recovered = accountID
		mu.Unlock()
	}, zerolog.Nop())
	o.tickInterval = 10 * time.Millisecond

	o.RestoreOrder(packetWithSeq("acct1", 1))
	o.RestoreOrder(packetWithSeq("acct1", 3)) // gap at 2: buffers and arms the deadline

	o.mu.Lock()
	past := time.Now().Add(-time.Second)
	o.accounts["acct1"].waitDeadline = past
	o.pending = nil
	heap.Push(&o.pending, deadlineEntry{accountID: "acct1", deadline: past})
	o.mu.Unlock()

	o.Start()
	defer o.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return recovered == "acct1"
	}, time.Second, 5*time.Millisecond)
}
