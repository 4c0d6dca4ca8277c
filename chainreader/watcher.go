// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package chainreader

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/offchainlabs/vector-reader/chaintypes"
)

var disputeEventTopics = []common.Hash{
	ChannelABI.Events[ChannelDisputed.String()].ID,
	ChannelABI.Events[ChannelDefunded.String()].ID,
	ChannelABI.Events[TransferDisputed.String()].ID,
	ChannelABI.Events[TransferDefunded.String()].ID,
}

type channelKey struct {
	chainID uint64
	channel common.Address
}

// channelWatcher scans one channel contract for dispute events. It is only
// touched by its own polling goroutine after registration.
type channelWatcher struct {
	reader    *Reader
	chainID   uint64
	channel   common.Address
	contract  *bind.BoundContract
	nextBlock uint64
}

// RegisterChannel starts watching channel for dispute events, which are then
// posted to Events(). Events are picked up from the block after the current
// head. Registering an already watched channel does nothing.
func (r *Reader) RegisterChannel(ctx context.Context, chainID uint64, channel common.Address) error {
	if _, err := r.client(chainID); err != nil {
		return err
	}
	if !r.Started() {
		return errors.New("chain reader must be started before registering channels")
	}
	key := channelKey{chainID: chainID, channel: channel}
	if _, ok := r.channels.Load(key); ok {
		return nil
	}
	head, err := r.GetBlockNumber(ctx, chainID)
	if err != nil {
		return err
	}
	watcher := &channelWatcher{
		reader:    r,
		chainID:   chainID,
		channel:   channel,
		contract:  bind.NewBoundContract(channel, ChannelABI, nil, nil, nil),
		nextBlock: head + 1,
	}
	if _, loaded := r.channels.LoadOrStore(key, watcher); loaded {
		return nil
	}
	if err := r.CallIteratively(watcher.poll); err != nil {
		r.channels.Delete(key)
		return err
	}
	log.Info("Watching channel for disputes", "chainId", chainID, "channel", channel, "fromBlock", watcher.nextBlock)
	return nil
}

// IsChannelRegistered reports whether RegisterChannel succeeded for channel.
func (r *Reader) IsChannelRegistered(chainID uint64, channel common.Address) bool {
	_, ok := r.channels.Load(channelKey{chainID: chainID, channel: channel})
	return ok
}

func (w *channelWatcher) poll(ctx context.Context) time.Duration {
	if err := w.scan(ctx); err != nil && ctx.Err() == nil {
		log.Warn("Could not scan channel for dispute events", "chainId", w.chainID, "channel", w.channel, "err", err)
	}
	return w.reader.config().PollInterval
}

func (w *channelWatcher) scan(ctx context.Context) error {
	head, err := w.reader.GetBlockNumber(ctx, w.chainID)
	if err != nil {
		return errors.Wrap(err, "could not get chain head")
	}
	if head < w.nextBlock {
		return nil
	}
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(w.nextBlock),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{w.channel},
		Topics:    [][]common.Hash{disputeEventTopics},
	}
	logs, err := call(ctx, w.reader, w.chainID, "filterLogs", func(ctx context.Context, client chaintypes.ChainClient) ([]types.Log, error) {
		return client.FilterLogs(ctx, query)
	})
	if err != nil {
		return errors.Wrapf(err, "could not filter logs from %d to %d", w.nextBlock, head)
	}
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
	for _, l := range logs {
		if l.Removed {
			continue
		}
		event, err := w.decode(l)
		if err != nil {
			log.Error("Could not decode dispute event", "chainId", w.chainID, "channel", w.channel, "tx", l.TxHash, "err", err)
			continue
		}
		log.Debug("Dispute event", "kind", event.Kind(), "chainId", w.chainID, "channel", w.channel, "block", l.BlockNumber)
		w.reader.events.Post(event)
	}
	w.nextBlock = head + 1
	return nil
}

func (w *channelWatcher) decode(l types.Log) (Event, error) {
	if len(l.Topics) == 0 {
		return nil, errors.New("log has no topics")
	}
	switch l.Topics[0] {
	case disputeEventTopics[ChannelDisputed]:
		var raw struct {
			Disputer common.Address
			State    chaintypes.ABICoreChannelState
			Dispute  chaintypes.ABIChannelDispute
		}
		if err := w.contract.UnpackLog(&raw, ChannelDisputed.String(), l); err != nil {
			return nil, errors.Wrap(err, "unpacking ChannelDisputed")
		}
		return &ChannelDisputedEvent{
			ChainID:  w.chainID,
			Disputer: raw.Disputer,
			State:    chaintypes.CoreChannelStateFromABI(raw.State),
			Dispute:  chaintypes.ChannelDisputeFromABI(raw.Dispute),
		}, nil
	case disputeEventTopics[ChannelDefunded]:
		var raw struct {
			Defunder common.Address
			State    chaintypes.ABICoreChannelState
			Dispute  chaintypes.ABIChannelDispute
			AssetIds []common.Address
		}
		if err := w.contract.UnpackLog(&raw, ChannelDefunded.String(), l); err != nil {
			return nil, errors.Wrap(err, "unpacking ChannelDefunded")
		}
		return &ChannelDefundedEvent{
			ChainID:        w.chainID,
			Defunder:       raw.Defunder,
			State:          chaintypes.CoreChannelStateFromABI(raw.State),
			Dispute:        chaintypes.ChannelDisputeFromABI(raw.Dispute),
			DefundedAssets: raw.AssetIds,
		}, nil
	case disputeEventTopics[TransferDisputed]:
		var raw struct {
			Disputer common.Address
			State    chaintypes.ABICoreTransferState
			Dispute  chaintypes.ABITransferDispute
		}
		if err := w.contract.UnpackLog(&raw, TransferDisputed.String(), l); err != nil {
			return nil, errors.Wrap(err, "unpacking TransferDisputed")
		}
		return &TransferDisputedEvent{
			ChainID:  w.chainID,
			Disputer: raw.Disputer,
			State:    chaintypes.CoreTransferStateFromABI(raw.State),
			Dispute:  chaintypes.TransferDisputeFromABI(raw.State.TransferId, raw.Dispute),
		}, nil
	case disputeEventTopics[TransferDefunded]:
		var raw struct {
			Defunder            common.Address
			State               chaintypes.ABICoreTransferState
			Dispute             chaintypes.ABITransferDispute
			EncodedInitialState []byte
			EncodedResolver     []byte
			Balance             chaintypes.ABIBalance
		}
		if err := w.contract.UnpackLog(&raw, TransferDefunded.String(), l); err != nil {
			return nil, errors.Wrap(err, "unpacking TransferDefunded")
		}
		return &TransferDefundedEvent{
			ChainID:                 w.chainID,
			Defunder:                raw.Defunder,
			State:                   chaintypes.CoreTransferStateFromABI(raw.State),
			Dispute:                 chaintypes.TransferDisputeFromABI(raw.State.TransferId, raw.Dispute),
			EncodedInitialState:     raw.EncodedInitialState,
			EncodedTransferResolver: raw.EncodedResolver,
			Balance:                 chaintypes.BalanceFromABI(raw.Balance),
		}, nil
	default:
		return nil, fmt.Errorf("unexpected event topic %v", l.Topics[0])
	}
}
