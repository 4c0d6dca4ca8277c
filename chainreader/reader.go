// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package chainreader reads channel, transfer and registry state from the
// chains a state-channel node is connected to. Every read goes through a
// bounded retry, is evaluated at an explicit or reorg-safe block, and fails
// with a *ChainError.
package chainreader

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/offchainlabs/vector-reader/chaintypes"
	"github.com/offchainlabs/vector-reader/util/containers"
	"github.com/offchainlabs/vector-reader/util/retry"
	"github.com/offchainlabs/vector-reader/util/stopwaiter"
)

var (
	readFailedCounter    = metrics.NewRegisteredCounter("chainreader/read/failed", nil)
	readSucceededCounter = metrics.NewRegisteredCounter("chainreader/read/succeeded", nil)
)

type Reader struct {
	stopwaiter.StopWaiter
	config   ConfigFetcher
	clients  map[uint64]chaintypes.ChainClient
	oracle   GasOracle
	registry *registryCache
	channels containers.SyncMap[channelKey, *channelWatcher]
	events   *EventBus
}

// NewReader validates the current config. A nil oracle is replaced by an HTTP
// oracle when gas-oracle.url is set.
func NewReader(config ConfigFetcher, clients map[uint64]chaintypes.ChainClient, oracle GasOracle) (*Reader, error) {
	if err := config().Validate(); err != nil {
		return nil, fmt.Errorf("invalid chain reader config: %w", err)
	}
	if oracle == nil && config().GasOracle.URL != "" {
		oracle = NewHTTPGasOracle(&config().GasOracle)
	}
	copied := make(map[uint64]chaintypes.ChainClient, len(clients))
	for chainID, client := range clients {
		copied[chainID] = client
	}
	return &Reader{
		config:   config,
		clients:  copied,
		oracle:   oracle,
		registry: newRegistryCache(),
		events:   NewEventBus(),
	}, nil
}

func (r *Reader) Start(ctx context.Context) {
	r.StopWaiter.Start(ctx, r)
}

// Events is the bus dispute events of registered channels are posted to.
func (r *Reader) Events() *EventBus {
	return r.events
}

// GetChainProviders returns the configured endpoint of every chain.
func (r *Reader) GetChainProviders() map[uint64]string {
	out := make(map[uint64]string)
	for chainID, url := range r.config().ProviderURLs() {
		out[chainID] = url
	}
	return out
}

func (r *Reader) client(chainID uint64) (chaintypes.ChainClient, error) {
	client, ok := r.clients[chainID]
	if !ok || client == nil {
		return nil, newChainError(ErrProviderNotFound, chainID, nil)
	}
	return client, nil
}

// call runs fn under the retry budget with a per-attempt timeout. Errors
// marked retry.Permanent are returned without further attempts.
func call[T any](ctx context.Context, r *Reader, chainID uint64, method string, fn func(ctx context.Context, client chaintypes.ChainClient) (T, error)) (T, error) {
	var zero T
	client, err := r.client(chainID)
	if err != nil {
		return zero, err
	}
	config := r.config()
	got, err := retry.Bounded(ctx, config.MaxRetries, func(ctx context.Context) (T, error) {
		if timeout := config.Provider.Timeout; timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return fn(ctx, client)
	})
	if err != nil {
		readFailedCounter.Inc(1)
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			log.Debug("Chain read failed", "chainId", chainID, "method", method, "attempts", len(exhausted.Attempts), "err", exhausted.Last)
		}
		return zero, asChainError(chainID, err, "method", method)
	}
	readSucceededCounter.Inc(1)
	return got, nil
}
