// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package chainreader

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/offchainlabs/vector-reader/abicodec"
	"github.com/offchainlabs/vector-reader/chaintypes"
	"github.com/offchainlabs/vector-reader/util/retry"
)

// registryCache holds the transfer registry of each chain. An entry is
// written once and never evicted; registries only grow on-chain and new
// types are picked up by a restart.
type registryCache struct {
	mutex   sync.RWMutex
	entries map[uint64][]chaintypes.RegisteredTransfer
}

func newRegistryCache() *registryCache {
	return &registryCache{entries: make(map[uint64][]chaintypes.RegisteredTransfer)}
}

func (c *registryCache) get(chainID uint64) ([]chaintypes.RegisteredTransfer, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	entry, ok := c.entries[chainID]
	return entry, ok
}

// storeIfAbsent returns whichever registry ends up cached for the chain.
func (c *registryCache) storeIfAbsent(chainID uint64, transfers []chaintypes.RegisteredTransfer) []chaintypes.RegisteredTransfer {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if existing, ok := c.entries[chainID]; ok {
		return existing
	}
	c.entries[chainID] = transfers
	return transfers
}

// loadRegistry runs inside a retried attempt. The local path is tried first
// when bytecode of the registry is supplied.
func (r *Reader) loadRegistry(ctx context.Context, client chaintypes.ChainClient, chainID uint64, registry common.Address, bytecode []byte, block chaintypes.BlockRef) ([]chaintypes.RegisteredTransfer, error) {
	if cached, ok := r.registry.get(chainID); ok {
		return cached, nil
	}
	input, err := TransferRegistryABI.Pack("getTransferDefinitions")
	if err != nil {
		return nil, retry.Permanent(newChainError(ErrEncodingFailure, chainID, err, "transferRegistry", registry))
	}
	var raw []chaintypes.ABIRegisteredTransfer
	output, err := r.executeLocal(chainID, bytecode, input)
	if err == nil {
		raw, err = unpackOutput[[]chaintypes.ABIRegisteredTransfer](TransferRegistryABI, "getTransferDefinitions", output)
		if err != nil {
			localFailedCounter.Inc(1)
			log.Debug("Local registry output undecodable", "chainId", chainID, "transferRegistry", registry, "err", err)
		}
	}
	if err != nil {
		raw, err = callContract[[]chaintypes.ABIRegisteredTransfer](ctx, client, TransferRegistryABI, registry, block, "getTransferDefinitions")
		if err != nil {
			return nil, err
		}
	}
	transfers := make([]chaintypes.RegisteredTransfer, len(raw))
	for i, entry := range raw {
		transfers[i] = chaintypes.RegisteredTransfer{
			Name:             entry.Name,
			Definition:       entry.Definition,
			StateEncoding:    abicodec.Tidy(entry.StateEncoding),
			ResolverEncoding: abicodec.Tidy(entry.ResolverEncoding),
			EncodedCancel:    entry.EncodedCancel,
		}
	}
	log.Info("Loaded transfer registry", "chainId", chainID, "transferRegistry", registry, "transfers", len(transfers))
	return r.registry.storeIfAbsent(chainID, transfers), nil
}

func (r *Reader) lookupRegisteredTransfer(
	ctx context.Context,
	chainID uint64,
	registry common.Address,
	bytecode []byte,
	block chaintypes.BlockRef,
	keyName string,
	key any,
	match func(chaintypes.RegisteredTransfer) bool,
) (chaintypes.RegisteredTransfer, error) {
	block, err := r.prepare(ctx, chainID, block)
	if err != nil {
		return chaintypes.RegisteredTransfer{}, err
	}
	return call(ctx, r, chainID, "getTransferDefinitions", func(ctx context.Context, client chaintypes.ChainClient) (chaintypes.RegisteredTransfer, error) {
		transfers, err := r.loadRegistry(ctx, client, chainID, registry, bytecode, block)
		if err != nil {
			return chaintypes.RegisteredTransfer{}, err
		}
		for _, transfer := range transfers {
			if match(transfer) {
				return transfer, nil
			}
		}
		return chaintypes.RegisteredTransfer{}, retry.Permanent(newChainError(ErrTransferNotRegistered, chainID, nil, keyName, key, "transferRegistry", registry))
	})
}

// GetRegisteredTransferByDefinition looks up the registered transfer type
// deployed at definition.
func (r *Reader) GetRegisteredTransferByDefinition(ctx context.Context, chainID uint64, definition, registry common.Address, bytecode []byte, block chaintypes.BlockRef) (chaintypes.RegisteredTransfer, error) {
	return r.lookupRegisteredTransfer(ctx, chainID, registry, bytecode, block, "definition", definition, func(transfer chaintypes.RegisteredTransfer) bool {
		return transfer.Definition == definition
	})
}

func (r *Reader) GetRegisteredTransferByName(ctx context.Context, chainID uint64, name string, registry common.Address, bytecode []byte, block chaintypes.BlockRef) (chaintypes.RegisteredTransfer, error) {
	return r.lookupRegisteredTransfer(ctx, chainID, registry, bytecode, block, "name", name, func(transfer chaintypes.RegisteredTransfer) bool {
		return transfer.Name == name
	})
}

// GetRegisteredTransfers returns a copy of the chain's whole registry.
func (r *Reader) GetRegisteredTransfers(ctx context.Context, chainID uint64, registry common.Address, bytecode []byte, block chaintypes.BlockRef) ([]chaintypes.RegisteredTransfer, error) {
	block, err := r.prepare(ctx, chainID, block)
	if err != nil {
		return nil, err
	}
	return call(ctx, r, chainID, "getTransferDefinitions", func(ctx context.Context, client chaintypes.ChainClient) ([]chaintypes.RegisteredTransfer, error) {
		transfers, err := r.loadRegistry(ctx, client, chainID, registry, bytecode, block)
		if err != nil {
			return nil, err
		}
		return append([]chaintypes.RegisteredTransfer(nil), transfers...), nil
	})
}
