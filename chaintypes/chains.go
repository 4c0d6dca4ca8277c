// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package chaintypes

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultConfirmationCount is used for chains missing from DefaultConfirmations.
const DefaultConfirmationCount uint64 = 10

// NativeAsset is the asset id of a chain's native currency.
var NativeAsset = common.Address{}

// NativeAssetDecimals is reported for NativeAsset without a contract call.
const NativeAssetDecimals uint8 = 18

// DefaultTestChainIDs are local or ephemeral chains where reads always use the
// latest block: there is no reorg to protect against and few blocks to wait for.
var DefaultTestChainIDs = []uint64{1337, 1338, 1339, 31337}

// DefaultConfirmations is the number of blocks subtracted from the chain head
// before a height is considered safe from reorgs.
var DefaultConfirmations = map[uint64]uint64{
	1:     10, // mainnet
	5:     10, // goerli
	10:    5,  // optimism
	56:    15, // bsc
	100:   5,  // gnosis
	137:   60, // polygon
	250:   5,  // fantom
	42161: 5,  // arbitrum one
	43114: 5,  // avalanche
}

// ChainClient is the part of an ethclient.Client the chain reader depends on.
type ChainClient interface {
	bind.ContractCaller
	ethereum.LogFilterer
	ethereum.GasPricer
	ethereum.GasEstimator
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// SyncReader is implemented by clients able to report eth_syncing.
type SyncReader interface {
	SyncProgress(ctx context.Context) (*ethereum.SyncProgress, error)
}
