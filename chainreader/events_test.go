// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package chainreader

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/offchainlabs/vector-reader/chaintypes"
	"github.com/offchainlabs/vector-reader/util/testhelpers"
)

func channelDisputed(channel common.Address, nonce uint64) *ChannelDisputedEvent {
	return &ChannelDisputedEvent{
		Disputer: testhelpers.RandomAddress(),
		State:    chaintypes.CoreChannelState{ChannelAddress: channel, Nonce: nonce},
	}
}

func TestEventBusOnAndFilter(t *testing.T) {
	bus := NewEventBus()
	wanted := testhelpers.RandomAddress()
	var all, filtered []Event
	bus.On(ChannelDisputed, func(e Event) { all = append(all, e) }, nil)
	bus.On(ChannelDisputed, func(e Event) { filtered = append(filtered, e) }, func(e Event) bool {
		return e.Channel() == wanted
	})
	bus.On(TransferDisputed, func(e Event) { t.Fatal("wrong kind delivered") }, nil)

	bus.Post(channelDisputed(testhelpers.RandomAddress(), 1))
	bus.Post(channelDisputed(wanted, 2))
	bus.Post(channelDisputed(wanted, 3))

	require.Len(t, all, 3)
	require.Len(t, filtered, 2)
	require.Equal(t, uint64(2), filtered[0].(*ChannelDisputedEvent).State.Nonce)
	require.Equal(t, uint64(3), filtered[1].(*ChannelDisputedEvent).State.Nonce)
}

func TestEventBusOnce(t *testing.T) {
	bus := NewEventBus()
	calls := 0
	bus.Once(ChannelDefunded, func(Event) { calls++ }, func(e Event) bool {
		return len(e.(*ChannelDefundedEvent).DefundedAssets) > 0
	})
	bus.Post(&ChannelDefundedEvent{})
	require.Zero(t, calls)
	require.Equal(t, 1, bus.ListenerCount(ChannelDefunded))

	bus.Post(&ChannelDefundedEvent{DefundedAssets: []common.Address{chaintypes.NativeAsset}})
	bus.Post(&ChannelDefundedEvent{DefundedAssets: []common.Address{chaintypes.NativeAsset}})
	require.Equal(t, 1, calls)
	require.Zero(t, bus.ListenerCount(ChannelDefunded))
}

func TestEventBusOnceUnderConcurrentPosts(t *testing.T) {
	bus := NewEventBus()
	var mutex sync.Mutex
	calls := 0
	bus.Once(TransferDefunded, func(Event) {
		mutex.Lock()
		calls++
		mutex.Unlock()
	}, nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Post(&TransferDefundedEvent{})
		}()
	}
	wg.Wait()
	require.Equal(t, 1, calls)
}

func TestEventBusOffAndRemove(t *testing.T) {
	bus := NewEventBus()
	bus.Off()
	bus.Off(TransferDefunded)

	calls := map[EventKind]int{}
	for _, kind := range EventKinds {
		kind := kind
		bus.On(kind, func(Event) { calls[kind]++ }, nil)
	}
	id := bus.On(ChannelDisputed, func(Event) { calls[ChannelDisputed] += 100 }, nil)
	bus.Remove(id)
	bus.Remove(id)

	bus.Post(channelDisputed(common.Address{}, 1))
	require.Equal(t, 1, calls[ChannelDisputed])

	bus.Off(ChannelDisputed)
	bus.Post(channelDisputed(common.Address{}, 1))
	bus.Post(&TransferDisputedEvent{})
	require.Equal(t, 1, calls[ChannelDisputed])
	require.Equal(t, 1, calls[TransferDisputed])

	bus.Off()
	bus.Post(&TransferDisputedEvent{})
	require.Equal(t, 1, calls[TransferDisputed])
	for _, kind := range EventKinds {
		require.Zero(t, bus.ListenerCount(kind), kind.String())
	}
}

func TestEventBusWaitFor(t *testing.T) {
	bus := NewEventBus()
	channel := testhelpers.RandomAddress()
	go func() {
		for bus.ListenerCount(ChannelDisputed) == 0 {
			time.Sleep(time.Millisecond)
		}
		bus.Post(channelDisputed(testhelpers.RandomAddress(), 1))
		bus.Post(channelDisputed(channel, 2))
	}()
	event, err := bus.WaitFor(context.Background(), ChannelDisputed, 5*time.Second, func(e Event) bool {
		return e.Channel() == channel
	})
	require.NoError(t, err)
	require.Equal(t, uint64(2), event.(*ChannelDisputedEvent).State.Nonce)
	require.Zero(t, bus.ListenerCount(ChannelDisputed))

	_, err = bus.WaitFor(context.Background(), TransferDisputed, 20*time.Millisecond, nil)
	require.ErrorIs(t, err, ErrWaitTimeout)
	require.Zero(t, bus.ListenerCount(TransferDisputed))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = bus.WaitFor(ctx, TransferDisputed, 0, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestEventKindString(t *testing.T) {
	require.Equal(t, []string{"ChannelDisputed", "ChannelDefunded", "TransferDisputed", "TransferDefunded"}, func() []string {
		var names []string
		for _, kind := range EventKinds {
			names = append(names, kind.String())
		}
		return names
	}())
	for _, kind := range EventKinds {
		_, ok := ChannelABI.Events[kind.String()]
		require.True(t, ok, kind.String())
	}
}

func TestEventPayloadJSONUsesDecimalAmounts(t *testing.T) {
	event := &TransferDisputedEvent{
		ChainID: 1,
		State: chaintypes.CoreTransferState{
			Balance:         chaintypes.NewBalance(new(big.Int).Lsh(big.NewInt(1), 70), big.NewInt(0), common.Address{}, common.Address{}),
			TransferTimeout: big.NewInt(3600),
		},
		Dispute: chaintypes.TransferDispute{TransferDisputeExpiry: big.NewInt(123456789)},
	}
	encoded, err := json.Marshal(event)
	require.NoError(t, err)
	require.Contains(t, string(encoded), `"transferDisputeExpiry":"123456789"`)
	require.Contains(t, string(encoded), `"transferTimeout":"3600"`)
	require.Contains(t, string(encoded), `"amount":["1180591620717411303424","0"]`)
}
