// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package chainreader

import (
	"context"

	"github.com/offchainlabs/vector-reader/chaintypes"
)

// ResolveBlock turns the zero BlockRef into a concrete reference: latest on
// test chains, otherwise the head minus the chain's confirmation count,
// floored at zero. Resolved references are returned unchanged.
func (r *Reader) ResolveBlock(ctx context.Context, chainID uint64, block chaintypes.BlockRef) (chaintypes.BlockRef, error) {
	if block.IsResolved() {
		return block, nil
	}
	if _, err := r.client(chainID); err != nil {
		return block, err
	}
	config := r.config()
	if config.IsTestChain(chainID) {
		return chaintypes.LatestBlock(), nil
	}
	head, err := r.GetBlockNumber(ctx, chainID)
	if err != nil {
		return block, err
	}
	return chaintypes.AtBlock(SafeHeight(head, config.ConfirmationsFor(chainID))), nil
}

// SafeHeight is max(0, head - confirmations).
func SafeHeight(head, confirmations uint64) uint64 {
	if head < confirmations {
		return 0
	}
	return head - confirmations
}
