// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package chainreader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/offchainlabs/vector-reader/chaintypes"
)

type EventKind uint8

const (
	ChannelDisputed EventKind = iota
	ChannelDefunded
	TransferDisputed
	TransferDefunded
)

// EventKinds lists every kind in the order the watcher subscribes to them.
var EventKinds = []EventKind{ChannelDisputed, ChannelDefunded, TransferDisputed, TransferDefunded}

func (k EventKind) String() string {
	switch k {
	case ChannelDisputed:
		return "ChannelDisputed"
	case ChannelDefunded:
		return "ChannelDefunded"
	case TransferDisputed:
		return "TransferDisputed"
	case TransferDefunded:
		return "TransferDefunded"
	default:
		return "Unknown"
	}
}

// Event is one of the payload structs below.
type Event interface {
	Kind() EventKind
	Channel() common.Address
}

type ChannelDisputedEvent struct {
	ChainID  uint64                      `json:"chainId"`
	Disputer common.Address              `json:"disputer"`
	State    chaintypes.CoreChannelState `json:"state"`
	Dispute  chaintypes.ChannelDispute   `json:"dispute"`
}

type ChannelDefundedEvent struct {
	ChainID        uint64                      `json:"chainId"`
	Defunder       common.Address              `json:"defunder"`
	State          chaintypes.CoreChannelState `json:"state"`
	Dispute        chaintypes.ChannelDispute   `json:"dispute"`
	DefundedAssets []common.Address            `json:"defundedAssets"`
}

type TransferDisputedEvent struct {
	ChainID  uint64                       `json:"chainId"`
	Disputer common.Address               `json:"disputer"`
	State    chaintypes.CoreTransferState `json:"state"`
	Dispute  chaintypes.TransferDispute   `json:"dispute"`
}

type TransferDefundedEvent struct {
	ChainID                 uint64                       `json:"chainId"`
	Defunder                common.Address               `json:"defunder"`
	State                   chaintypes.CoreTransferState `json:"state"`
	Dispute                 chaintypes.TransferDispute   `json:"dispute"`
	EncodedInitialState     []byte                       `json:"encodedInitialState"`
	EncodedTransferResolver []byte                       `json:"encodedTransferResolver"`
	Balance                 chaintypes.Balance           `json:"balance"`
}

func (*ChannelDisputedEvent) Kind() EventKind  { return ChannelDisputed }
func (*ChannelDefundedEvent) Kind() EventKind  { return ChannelDefunded }
func (*TransferDisputedEvent) Kind() EventKind { return TransferDisputed }
func (*TransferDefundedEvent) Kind() EventKind { return TransferDefunded }

func (e *ChannelDisputedEvent) Channel() common.Address  { return e.State.ChannelAddress }
func (e *ChannelDefundedEvent) Channel() common.Address  { return e.State.ChannelAddress }
func (e *TransferDisputedEvent) Channel() common.Address { return e.State.ChannelAddress }
func (e *TransferDefundedEvent) Channel() common.Address { return e.State.ChannelAddress }

var ErrWaitTimeout = errors.New("timed out waiting for event")

// ListenerID identifies a subscription for Remove.
type ListenerID uint64

type listener struct {
	id       ListenerID
	callback func(Event)
	filter   func(Event) bool
	once     bool
	fired    atomic.Bool
}

// EventBus fans posted events out to listeners of their kind. Callbacks run
// synchronously on the posting goroutine, in subscription order.
type EventBus struct {
	mutex     sync.Mutex
	nextID    ListenerID
	listeners map[EventKind][]*listener
}

func NewEventBus() *EventBus {
	return &EventBus{listeners: make(map[EventKind][]*listener)}
}

func (b *EventBus) add(kind EventKind, callback func(Event), filter func(Event) bool, once bool) ListenerID {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.nextID++
	b.listeners[kind] = append(b.listeners[kind], &listener{
		id:       b.nextID,
		callback: callback,
		filter:   filter,
		once:     once,
	})
	return b.nextID
}

// On calls callback for every event of kind accepted by filter. A nil filter
// accepts everything.
func (b *EventBus) On(kind EventKind, callback func(Event), filter func(Event) bool) ListenerID {
	return b.add(kind, callback, filter, false)
}

// Once is On for the first accepted event only.
func (b *EventBus) Once(kind EventKind, callback func(Event), filter func(Event) bool) ListenerID {
	return b.add(kind, callback, filter, true)
}

func (b *EventBus) Remove(id ListenerID) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	for kind, listeners := range b.listeners {
		for i, l := range listeners {
			if l.id == id {
				b.listeners[kind] = append(listeners[:i:i], listeners[i+1:]...)
				return
			}
		}
	}
}

// Off drops every listener of the given kinds, or of all kinds when none are
// given.
func (b *EventBus) Off(kinds ...EventKind) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if len(kinds) == 0 {
		b.listeners = make(map[EventKind][]*listener)
		return
	}
	for _, kind := range kinds {
		delete(b.listeners, kind)
	}
}

// ListenerCount is the number of live listeners of kind.
func (b *EventBus) ListenerCount(kind EventKind) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.listeners[kind])
}

func (b *EventBus) Post(event Event) {
	b.mutex.Lock()
	listeners := append([]*listener(nil), b.listeners[event.Kind()]...)
	b.mutex.Unlock()
	for _, l := range listeners {
		if l.filter != nil && !l.filter(event) {
			continue
		}
		if l.once {
			if !l.fired.CompareAndSwap(false, true) {
				continue
			}
			b.Remove(l.id)
		}
		l.callback(event)
	}
}

// WaitFor blocks until an event of kind passes filter, the timeout elapses or
// ctx is done. A zero timeout waits on ctx alone.
func (b *EventBus) WaitFor(ctx context.Context, kind EventKind, timeout time.Duration, filter func(Event) bool) (Event, error) {
	received := make(chan Event, 1)
	id := b.Once(kind, func(event Event) {
		received <- event
	}, filter)
	defer b.Remove(id)
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case event := <-received:
		return event, nil
	case <-expired:
		return nil, ErrWaitTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
