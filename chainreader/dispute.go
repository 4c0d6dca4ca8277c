// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package chainreader

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/offchainlabs/vector-reader/chaintypes"
	"github.com/offchainlabs/vector-reader/util/merkletree"
)

// ChannelStore is the locally persisted view of a channel.
type ChannelStore interface {
	GetChannelState(ctx context.Context, channel common.Address) (*chaintypes.CoreChannelState, error)
	GetActiveTransfers(ctx context.Context, channel common.Address) ([]*chaintypes.CoreTransferState, error)
}

// DisputeVerification compares an on-chain channel dispute with local state.
// Dispute is nil, and both checks false, when the channel is not disputed.
type DisputeVerification struct {
	Dispute          *chaintypes.ChannelDispute
	LocalRoot        common.Hash
	LocalStateHash   common.Hash
	RootMatches      bool
	StateHashMatches bool
}

func (v *DisputeVerification) Matches() bool {
	return v.Dispute != nil && v.RootMatches && v.StateHashMatches
}

// ErrChannelNotInStore is returned when the store has no state for a channel.
var ErrChannelNotInStore = errors.New("channel not in store")

func activeTransfers(ctx context.Context, channel common.Address, store ChannelStore) ([]*chaintypes.CoreTransferState, error) {
	transfers, err := store.GetActiveTransfers(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("loading active transfers of %v: %w", channel, err)
	}
	return transfers, nil
}

func (r *Reader) transferTree(transfers []*chaintypes.CoreTransferState) (*merkletree.TransferTree, error) {
	return merkletree.NewTransferTree(transfers, merkletree.WithOddNodePolicy(r.config().MerkleOddNodePolicy()))
}

// VerifyChannelDispute reads the channel's dispute at the safe block and
// checks it against the root and state hash recomputed from store.
func (r *Reader) VerifyChannelDispute(ctx context.Context, chainID uint64, channel common.Address, store ChannelStore) (*DisputeVerification, error) {
	dispute, err := r.GetChannelDispute(ctx, chainID, channel, chaintypes.SafeBlock)
	if err != nil {
		return nil, err
	}
	state, err := store.GetChannelState(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("loading channel state of %v: %w", channel, err)
	}
	if state == nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelNotInStore, channel)
	}
	transfers, err := activeTransfers(ctx, channel, store)
	if err != nil {
		return nil, err
	}
	tree, err := r.transferTree(transfers)
	if err != nil {
		return nil, newChainError(ErrEncodingFailure, chainID, err, "channel", channel)
	}
	stateHash, err := chaintypes.HashCoreChannelState(state)
	if err != nil {
		return nil, newChainError(ErrEncodingFailure, chainID, err, "channel", channel)
	}
	verification := &DisputeVerification{
		Dispute:        dispute,
		LocalRoot:      tree.Root(),
		LocalStateHash: stateHash,
	}
	if dispute == nil {
		return verification, nil
	}
	verification.RootMatches = dispute.MerkleRoot == verification.LocalRoot
	verification.StateHashMatches = dispute.ChannelStateHash == stateHash
	if !verification.Matches() {
		log.Warn("Channel dispute does not match local state", "chainId", chainID, "channel", channel,
			"disputeRoot", dispute.MerkleRoot, "localRoot", verification.LocalRoot,
			"disputeStateHash", dispute.ChannelStateHash, "localStateHash", stateHash)
	}
	return verification, nil
}

// ProveTransfer builds the inclusion proof needed to dispute one transfer of
// the channel.
func (r *Reader) ProveTransfer(ctx context.Context, channel common.Address, transferID common.Hash, store ChannelStore) (*merkletree.TransferProof, error) {
	transfers, err := activeTransfers(ctx, channel, store)
	if err != nil {
		return nil, err
	}
	tree, err := r.transferTree(transfers)
	if err != nil {
		return nil, err
	}
	return tree.Prove(transferID)
}
