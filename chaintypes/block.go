// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package chaintypes

import (
	"fmt"
	"math/big"
)

type blockRefKind uint8

const (
	blockRefSafe blockRefKind = iota
	blockRefLatest
	blockRefHeight
)

// BlockRef selects the block a read is evaluated at. The zero value asks the
// reader to resolve a reorg-safe height itself.
type BlockRef struct {
	kind   blockRefKind
	height uint64
}

// SafeBlock is the zero BlockRef, spelled out for readability at call sites.
var SafeBlock = BlockRef{}

func LatestBlock() BlockRef {
	return BlockRef{kind: blockRefLatest}
}

func AtBlock(height uint64) BlockRef {
	return BlockRef{kind: blockRefHeight, height: height}
}

// IsResolved is false only for the zero value.
func (b BlockRef) IsResolved() bool {
	return b.kind != blockRefSafe
}

func (b BlockRef) IsLatest() bool {
	return b.kind == blockRefLatest
}

// Height returns the pinned height; ok is false for latest and unresolved refs.
func (b BlockRef) Height() (uint64, bool) {
	return b.height, b.kind == blockRefHeight
}

// Number converts the reference to the go-ethereum convention where nil
// means the most recent block.
func (b BlockRef) Number() *big.Int {
	if b.kind != blockRefHeight {
		return nil
	}
	return new(big.Int).SetUint64(b.height)
}

func (b BlockRef) String() string {
	switch b.kind {
	case blockRefLatest:
		return "latest"
	case blockRefHeight:
		return fmt.Sprintf("%d", b.height)
	default:
		return "safe"
	}
}
