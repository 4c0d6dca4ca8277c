// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package rpcclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

type ClientConfig struct {
	Timeout        time.Duration `koanf:"timeout" reload:"hot"`
	ConnectionWait time.Duration `koanf:"connection-wait"`
	VerifyChainID  bool          `koanf:"verify-chain-id"`
}

type ClientConfigFetcher func() *ClientConfig

var DefaultClientConfig = ClientConfig{
	Timeout:        30 * time.Second,
	ConnectionWait: 10 * time.Second,
	VerifyChainID:  true,
}

var TestClientConfig = ClientConfig{
	Timeout:        5 * time.Second,
	ConnectionWait: time.Second,
	VerifyChainID:  true,
}

func RPCClientAddOptions(prefix string, f *flag.FlagSet, defaultConfig *ClientConfig) {
	f.Duration(prefix+".timeout", defaultConfig.Timeout, "per-request timeout (0-disabled)")
	f.Duration(prefix+".connection-wait", defaultConfig.ConnectionWait, "how long to wait for initial connection")
	f.Bool(prefix+".verify-chain-id", defaultConfig.VerifyChainID, "fail when a provider reports a different chain id than it is configured for")
}

type RpcClient struct {
	config ClientConfigFetcher
	url    string
	client *rpc.Client
}

func NewRpcClient(url string, config ClientConfigFetcher) *RpcClient {
	return &RpcClient{
		config: config,
		url:    url,
	}
}

func (c *RpcClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

func (c *RpcClient) Client() *rpc.Client {
	return c.client
}

func (c *RpcClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.config().Timeout
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// Start dials the endpoint, retrying once a second until connection-wait
// expires. Malformed urls fail immediately.
func (c *RpcClient) Start(ctx_in context.Context) error {
	if c.url == "" {
		return errors.New("no url provided for this connection")
	}
	connTimeout := time.After(c.config().ConnectionWait)
	for {
		ctx, cancelCtx := c.withTimeout(ctx_in)
		client, err := rpc.DialContext(ctx, c.url)
		cancelCtx()
		if err == nil {
			c.client = client
			return nil
		}
		if strings.Contains(err.Error(), "parse") ||
			strings.Contains(err.Error(), "malformed") ||
			strings.Contains(err.Error(), "no known transport") {
			return fmt.Errorf("%w: url %s", err, c.url)
		}
		select {
		case <-ctx_in.Done():
			return ctx_in.Err()
		case <-connTimeout:
			return fmt.Errorf("timeout trying to connect lastError: %w", err)
		case <-time.After(time.Second):
		}
	}
}

// ChainID asks the provider which chain it serves.
func (c *RpcClient) ChainID(ctx_in context.Context) (uint64, error) {
	if c.client == nil {
		return 0, errors.New("not connected")
	}
	ctx, cancelCtx := c.withTimeout(ctx_in)
	defer cancelCtx()
	id, err := ethclient.NewClient(c.client).ChainID(ctx)
	if err != nil {
		return 0, err
	}
	if !id.IsUint64() {
		return 0, fmt.Errorf("chain id %v out of range", id)
	}
	return id.Uint64(), nil
}

// Providers is the set of dialed chain providers keyed by chain id.
type Providers struct {
	clients map[uint64]*RpcClient
}

// DialProviders connects to every configured chain. On failure the
// connections made so far are closed.
func DialProviders(ctx context.Context, urls map[uint64]string, config ClientConfigFetcher) (*Providers, error) {
	chainIDs := make([]uint64, 0, len(urls))
	for chainID := range urls {
		chainIDs = append(chainIDs, chainID)
	}
	sort.Slice(chainIDs, func(i, j int) bool { return chainIDs[i] < chainIDs[j] })

	providers := &Providers{clients: make(map[uint64]*RpcClient, len(urls))}
	for _, chainID := range chainIDs {
		client := NewRpcClient(urls[chainID], config)
		if err := client.Start(ctx); err != nil {
			providers.Close()
			return nil, fmt.Errorf("chain %d: %w", chainID, err)
		}
		providers.clients[chainID] = client
		if config().VerifyChainID {
			reported, err := client.ChainID(ctx)
			if err != nil {
				providers.Close()
				return nil, fmt.Errorf("chain %d: reading chain id: %w", chainID, err)
			}
			if reported != chainID {
				providers.Close()
				return nil, fmt.Errorf("provider configured for chain %d serves chain %d", chainID, reported)
			}
		}
		log.Info("Connected to chain provider", "chainId", chainID)
	}
	return providers, nil
}

// EthClients wraps each connection in an ethclient.
func (p *Providers) EthClients() map[uint64]*ethclient.Client {
	out := make(map[uint64]*ethclient.Client, len(p.clients))
	for chainID, client := range p.clients {
		out[chainID] = ethclient.NewClient(client.Client())
	}
	return out
}

func (p *Providers) Close() {
	for _, client := range p.clients {
		client.Close()
	}
}
