// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package rpcclient

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"
)

type testEthAPI struct {
	chainID uint64
}

func (t *testEthAPI) ChainId() hexutil.Uint64 {
	return hexutil.Uint64(t.chainID)
}

func createTestServer(t *testing.T, chainID uint64) string {
	t.Helper()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", &testEthAPI{chainID: chainID}))
	httpServer := httptest.NewServer(server)
	t.Cleanup(func() {
		httpServer.Close()
		server.Stop()
	})
	return httpServer.URL
}

func testConfig() *ClientConfig {
	config := TestClientConfig
	return &config
}

func TestDialProviders(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	urls := map[uint64]string{
		1337: createTestServer(t, 1337),
		5:    createTestServer(t, 5),
	}
	providers, err := DialProviders(ctx, urls, testConfig)
	require.NoError(t, err)
	defer providers.Close()

	clients := providers.EthClients()
	require.Len(t, clients, 2)
	id, err := clients[5].ChainID(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(5), id.Uint64())
}

func TestDialProvidersChainMismatch(t *testing.T) {
	ctx := context.Background()
	urls := map[uint64]string{1: createTestServer(t, 5)}
	_, err := DialProviders(ctx, urls, testConfig)
	require.ErrorContains(t, err, "configured for chain 1 serves chain 5")

	unverified := func() *ClientConfig {
		config := TestClientConfig
		config.VerifyChainID = false
		return &config
	}
	providers, err := DialProviders(ctx, urls, unverified)
	require.NoError(t, err)
	providers.Close()
}

func TestStartRejectsMalformedURL(t *testing.T) {
	client := NewRpcClient("notascheme://x", testConfig)
	start := time.Now()
	err := client.Start(context.Background())
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)

	require.Error(t, NewRpcClient("", testConfig).Start(context.Background()))
}

func TestStartTimesOut(t *testing.T) {
	config := func() *ClientConfig {
		return &ClientConfig{Timeout: 100 * time.Millisecond, ConnectionWait: 200 * time.Millisecond}
	}
	client := NewRpcClient("ws://127.0.0.1:1", config)
	err := client.Start(context.Background())
	require.ErrorContains(t, err, "timeout trying to connect")
}
