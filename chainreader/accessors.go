// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package chainreader

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/offchainlabs/vector-reader/chaintypes"
)

// prepare checks the chain has a provider and resolves block. Both happen
// before the retried read so a missing provider is never retried.
func (r *Reader) prepare(ctx context.Context, chainID uint64, block chaintypes.BlockRef) (chaintypes.BlockRef, error) {
	if _, err := r.client(chainID); err != nil {
		return block, err
	}
	return r.ResolveBlock(ctx, chainID, block)
}

func isDeployed(ctx context.Context, client chaintypes.ChainClient, address common.Address, block chaintypes.BlockRef) (bool, error) {
	code, err := client.CodeAt(ctx, address, block.Number())
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

func (r *Reader) GetBlockNumber(ctx context.Context, chainID uint64) (uint64, error) {
	return call(ctx, r, chainID, "getBlockNumber", func(ctx context.Context, client chaintypes.ChainClient) (uint64, error) {
		return client.BlockNumber(ctx)
	})
}

// GetCode returns the deployed bytecode at address; empty means not deployed.
func (r *Reader) GetCode(ctx context.Context, chainID uint64, address common.Address, block chaintypes.BlockRef) ([]byte, error) {
	block, err := r.prepare(ctx, chainID, block)
	if err != nil {
		return nil, err
	}
	return call(ctx, r, chainID, "getCode", func(ctx context.Context, client chaintypes.ChainClient) ([]byte, error) {
		return client.CodeAt(ctx, address, block.Number())
	})
}

// GetSyncing reports eth_syncing. Clients unable to report it are treated as
// synced.
func (r *Reader) GetSyncing(ctx context.Context, chainID uint64) (chaintypes.SyncStatus, error) {
	return call(ctx, r, chainID, "getSyncing", func(ctx context.Context, client chaintypes.ChainClient) (chaintypes.SyncStatus, error) {
		syncer, ok := client.(chaintypes.SyncReader)
		if !ok {
			return chaintypes.SyncStatus{}, nil
		}
		progress, err := syncer.SyncProgress(ctx)
		if err != nil || progress == nil {
			return chaintypes.SyncStatus{}, err
		}
		return chaintypes.SyncStatus{
			Syncing:       progress.CurrentBlock < progress.HighestBlock,
			StartingBlock: progress.StartingBlock,
			CurrentBlock:  progress.CurrentBlock,
			HighestBlock:  progress.HighestBlock,
		}, nil
	})
}

func (r *Reader) EstimateGas(ctx context.Context, chainID uint64, msg ethereum.CallMsg) (uint64, error) {
	return call(ctx, r, chainID, "estimateGas", func(ctx context.Context, client chaintypes.ChainClient) (uint64, error) {
		return client.EstimateGas(ctx, msg)
	})
}

// GetChannelDispute returns nil when the channel is not deployed or has never
// been disputed.
func (r *Reader) GetChannelDispute(ctx context.Context, chainID uint64, channel common.Address, block chaintypes.BlockRef) (*chaintypes.ChannelDispute, error) {
	block, err := r.prepare(ctx, chainID, block)
	if err != nil {
		return nil, err
	}
	return call(ctx, r, chainID, "getChannelDispute", func(ctx context.Context, client chaintypes.ChainClient) (*chaintypes.ChannelDispute, error) {
		deployed, err := isDeployed(ctx, client, channel, block)
		if err != nil || !deployed {
			return nil, err
		}
		raw, err := callContract[chaintypes.ABIChannelDispute](ctx, client, ChannelABI, channel, block, "getChannelDispute")
		if err != nil {
			return nil, err
		}
		if common.Hash(raw.ChannelStateHash) == (common.Hash{}) {
			return nil, nil
		}
		dispute := chaintypes.ChannelDisputeFromABI(raw)
		return &dispute, nil
	})
}

// GetTransferDispute returns nil when the channel is not deployed or the
// transfer has never been disputed.
func (r *Reader) GetTransferDispute(ctx context.Context, chainID uint64, channel common.Address, transferID common.Hash, block chaintypes.BlockRef) (*chaintypes.TransferDispute, error) {
	block, err := r.prepare(ctx, chainID, block)
	if err != nil {
		return nil, err
	}
	return call(ctx, r, chainID, "getTransferDispute", func(ctx context.Context, client chaintypes.ChainClient) (*chaintypes.TransferDispute, error) {
		deployed, err := isDeployed(ctx, client, channel, block)
		if err != nil || !deployed {
			return nil, err
		}
		raw, err := callContract[chaintypes.ABITransferDispute](ctx, client, ChannelABI, channel, block, "getTransferDispute", transferID)
		if err != nil {
			return nil, err
		}
		if common.Hash(raw.TransferStateHash) == (common.Hash{}) {
			return nil, nil
		}
		dispute := chaintypes.TransferDisputeFromABI(transferID, raw)
		return &dispute, nil
	})
}

func (r *Reader) GetChannelFactoryBytecode(ctx context.Context, chainID uint64, factory common.Address, block chaintypes.BlockRef) ([]byte, error) {
	block, err := r.prepare(ctx, chainID, block)
	if err != nil {
		return nil, err
	}
	return call(ctx, r, chainID, "getProxyCreationCode", func(ctx context.Context, client chaintypes.ChainClient) ([]byte, error) {
		return callContract[[]byte](ctx, client, ChannelFactoryABI, factory, block, "getProxyCreationCode")
	})
}

func (r *Reader) GetChannelMastercopyAddress(ctx context.Context, chainID uint64, factory common.Address, block chaintypes.BlockRef) (common.Address, error) {
	block, err := r.prepare(ctx, chainID, block)
	if err != nil {
		return common.Address{}, err
	}
	return call(ctx, r, chainID, "getMastercopy", func(ctx context.Context, client chaintypes.ChainClient) (common.Address, error) {
		return callContract[common.Address](ctx, client, ChannelFactoryABI, factory, block, "getMastercopy")
	})
}

// GetChannelAddress asks the factory for the deterministic address of the
// alice/bob channel.
func (r *Reader) GetChannelAddress(ctx context.Context, chainID uint64, alice, bob, factory common.Address, block chaintypes.BlockRef) (common.Address, error) {
	block, err := r.prepare(ctx, chainID, block)
	if err != nil {
		return common.Address{}, err
	}
	return call(ctx, r, chainID, "getChannelAddress", func(ctx context.Context, client chaintypes.ChainClient) (common.Address, error) {
		return callContract[common.Address](ctx, client, ChannelFactoryABI, factory, block, "getChannelAddress", alice, bob)
	})
}

// GetTotalDepositedA is zero for an undeployed channel: alice can only
// deposit through the contract.
func (r *Reader) GetTotalDepositedA(ctx context.Context, chainID uint64, channel, assetID common.Address, block chaintypes.BlockRef) (*big.Int, error) {
	block, err := r.prepare(ctx, chainID, block)
	if err != nil {
		return nil, err
	}
	return call(ctx, r, chainID, "getTotalDepositsAlice", func(ctx context.Context, client chaintypes.ChainClient) (*big.Int, error) {
		deployed, err := isDeployed(ctx, client, channel, block)
		if err != nil {
			return nil, err
		}
		if !deployed {
			return new(big.Int), nil
		}
		return callContract[*big.Int](ctx, client, ChannelABI, channel, block, "getTotalDepositsAlice", assetID)
	})
}

// GetTotalDepositedB falls back to the raw balance of the channel address
// while the channel is undeployed, since everything sent there belongs to bob.
func (r *Reader) GetTotalDepositedB(ctx context.Context, chainID uint64, channel, assetID common.Address, block chaintypes.BlockRef) (*big.Int, error) {
	block, err := r.prepare(ctx, chainID, block)
	if err != nil {
		return nil, err
	}
	return call(ctx, r, chainID, "getTotalDepositsBob", func(ctx context.Context, client chaintypes.ChainClient) (*big.Int, error) {
		deployed, err := isDeployed(ctx, client, channel, block)
		if err != nil {
			return nil, err
		}
		if !deployed {
			return onchainBalance(ctx, client, assetID, channel, block)
		}
		return callContract[*big.Int](ctx, client, ChannelABI, channel, block, "getTotalDepositsBob", assetID)
	})
}

func onchainBalance(ctx context.Context, client chaintypes.ChainClient, assetID, owner common.Address, block chaintypes.BlockRef) (*big.Int, error) {
	if assetID == chaintypes.NativeAsset {
		return client.BalanceAt(ctx, owner, block.Number())
	}
	return callContract[*big.Int](ctx, client, ERC20ABI, assetID, block, "balanceOf", owner)
}

// GetOnchainBalance returns the native balance of owner for the zero asset
// id and the ERC20 balance otherwise.
func (r *Reader) GetOnchainBalance(ctx context.Context, chainID uint64, assetID, owner common.Address, block chaintypes.BlockRef) (*big.Int, error) {
	block, err := r.prepare(ctx, chainID, block)
	if err != nil {
		return nil, err
	}
	return call(ctx, r, chainID, "getOnchainBalance", func(ctx context.Context, client chaintypes.ChainClient) (*big.Int, error) {
		return onchainBalance(ctx, client, assetID, owner, block)
	})
}

func (r *Reader) GetTokenAllowance(ctx context.Context, chainID uint64, token, owner, spender common.Address, block chaintypes.BlockRef) (*big.Int, error) {
	block, err := r.prepare(ctx, chainID, block)
	if err != nil {
		return nil, err
	}
	return call(ctx, r, chainID, "allowance", func(ctx context.Context, client chaintypes.ChainClient) (*big.Int, error) {
		return callContract[*big.Int](ctx, client, ERC20ABI, token, block, "allowance", owner, spender)
	})
}

func (r *Reader) GetDecimals(ctx context.Context, chainID uint64, assetID common.Address, block chaintypes.BlockRef) (uint8, error) {
	if _, err := r.client(chainID); err != nil {
		return 0, err
	}
	if assetID == chaintypes.NativeAsset {
		return chaintypes.NativeAssetDecimals, nil
	}
	block, err := r.ResolveBlock(ctx, chainID, block)
	if err != nil {
		return 0, err
	}
	return call(ctx, r, chainID, "decimals", func(ctx context.Context, client chaintypes.ChainClient) (uint8, error) {
		return callContract[uint8](ctx, client, ERC20ABI, assetID, block, "decimals")
	})
}

// GetWithdrawalTransactionRecord reports whether the withdrawal was executed.
// An undeployed channel cannot have executed one.
func (r *Reader) GetWithdrawalTransactionRecord(ctx context.Context, chainID uint64, withdraw *chaintypes.WithdrawCommitment, block chaintypes.BlockRef) (bool, error) {
	block, err := r.prepare(ctx, chainID, block)
	if err != nil {
		return false, err
	}
	return call(ctx, r, chainID, "getWithdrawalTransactionRecord", func(ctx context.Context, client chaintypes.ChainClient) (bool, error) {
		deployed, err := isDeployed(ctx, client, withdraw.ChannelAddress, block)
		if err != nil || !deployed {
			return false, err
		}
		return callContract[bool](ctx, client, ChannelABI, withdraw.ChannelAddress, block, "getWithdrawalTransactionRecord", withdraw.ToABI())
	})
}
