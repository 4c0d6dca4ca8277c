// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package chainreader

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/offchainlabs/vector-reader/abicodec"
	"github.com/offchainlabs/vector-reader/chaintypes"
	"github.com/offchainlabs/vector-reader/util/merkletree"
	"github.com/offchainlabs/vector-reader/util/testhelpers"
)

const (
	simulatedChainID         = 1337
	hashlockStateEncoding    = "tuple(bytes32 lockHash, uint256 expiry)"
	hashlockResolverEncoding = "tuple(bytes32 preImage)"
)

var (
	testKey, _  = crypto.HexToECDSA("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	testAddress = crypto.PubkeyToAddress(testKey.PublicKey)
	bigComparer = cmp.Comparer(func(a, b *big.Int) bool {
		if a == nil || b == nil {
			return a == b
		}
		return a.Cmp(b) == 0
	})
)

// constantCode is runtime bytecode that ignores its calldata and returns data.
func constantCode(data []byte) []byte {
	size := len(data)
	code := []byte{
		byte(vm.PUSH2), byte(size >> 8), byte(size),
		byte(vm.PUSH2), 0x00, 0x0f,
		byte(vm.PUSH1), 0x00,
		byte(vm.CODECOPY),
		byte(vm.PUSH2), byte(size >> 8), byte(size),
		byte(vm.PUSH1), 0x00,
		byte(vm.RETURN),
	}
	return append(code, data...)
}

var revertCode = []byte{byte(vm.PUSH1), 0x00, byte(vm.PUSH1), 0x00, byte(vm.REVERT)}

// logEmitterCode emits one LOG1 whose topic is the first calldata word and
// whose data is the rest of the calldata.
var logEmitterCode = []byte{
	byte(vm.CALLDATASIZE), byte(vm.PUSH1), 0x00, byte(vm.PUSH1), 0x00, byte(vm.CALLDATACOPY),
	byte(vm.PUSH1), 0x00, byte(vm.MLOAD),
	byte(vm.PUSH1), 0x20, byte(vm.CALLDATASIZE), byte(vm.SUB),
	byte(vm.PUSH1), 0x20,
	byte(vm.LOG1),
	byte(vm.STOP),
}

func packOutputs(t *testing.T, contractABI abi.ABI, method string, values ...interface{}) []byte {
	t.Helper()
	data, err := contractABI.Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	return data
}

type simulatedChain struct {
	backend *simulated.Backend
	reader  *Reader
	nonce   uint64

	registry           common.Address
	registryCode       []byte
	createDefinition   common.Address
	createCode         []byte
	resolveDefinition  common.Address
	resolveCode        []byte
	resolvedBalance    chaintypes.Balance
	emptyChannel       common.Address
	watchedChannel     common.Address
	disputedChannel    common.Address
	disputedState      *chaintypes.CoreChannelState
	disputedTransfers  []*chaintypes.CoreTransferState
	registeredTransfer []chaintypes.ABIRegisteredTransfer
}

func newSimulatedChain(t *testing.T) *simulatedChain {
	t.Helper()
	chain := &simulatedChain{
		registry:          testhelpers.RandomAddress(),
		createDefinition:  testhelpers.RandomAddress(),
		resolveDefinition: testhelpers.RandomAddress(),
		emptyChannel:      testhelpers.RandomAddress(),
		watchedChannel:    testhelpers.RandomAddress(),
		disputedChannel:   testhelpers.RandomAddress(),
	}
	chain.registeredTransfer = []chaintypes.ABIRegisteredTransfer{
		{
			Name:             "HashlockTransfer",
			Definition:       chain.createDefinition,
			StateEncoding:    "tuple( bytes32   lockHash ,uint256 expiry )",
			ResolverEncoding: "tuple(\n  bytes32 preImage\n)",
			EncodedCancel:    make([]byte, 32),
		},
		{
			Name:             "Withdraw",
			Definition:       chain.resolveDefinition,
			StateEncoding:    hashlockStateEncoding,
			ResolverEncoding: hashlockResolverEncoding,
			EncodedCancel:    []byte{},
		},
	}
	chain.registryCode = constantCode(packOutputs(t, TransferRegistryABI, "getTransferDefinitions", chain.registeredTransfer))
	chain.createCode = constantCode(packOutputs(t, TransferDefinitionABI, "create", true))
	chain.resolvedBalance = chaintypes.NewBalance(big.NewInt(3), big.NewInt(97), testhelpers.RandomAddress(), testhelpers.RandomAddress())
	chain.resolveCode = constantCode(packOutputs(t, TransferDefinitionABI, "resolve", chain.resolvedBalance.ToABI()))

	chain.disputedTransfers = testhelpers.RandomTransfers(chain.disputedChannel, 5)
	root, err := merkletree.Root(chain.disputedTransfers)
	require.NoError(t, err)
	alice, bob := testhelpers.RandomAddress(), testhelpers.RandomAddress()
	chain.disputedState = &chaintypes.CoreChannelState{
		ChannelAddress:     chain.disputedChannel,
		Alice:              alice,
		Bob:                bob,
		AssetIDs:           []common.Address{chaintypes.NativeAsset},
		Balances:           []chaintypes.Balance{chaintypes.NewBalance(big.NewInt(1), big.NewInt(2), alice, bob)},
		ProcessedDepositsA: []*big.Int{big.NewInt(3)},
		ProcessedDepositsB: []*big.Int{big.NewInt(4)},
		DefundNonces:       []*big.Int{big.NewInt(1)},
		Timeout:            big.NewInt(86400),
		Nonce:              7,
		MerkleRoot:         root,
	}
	stateHash, err := chaintypes.HashCoreChannelState(chain.disputedState)
	require.NoError(t, err)
	disputeCode := constantCode(packOutputs(t, ChannelABI, "getChannelDispute", chaintypes.ABIChannelDispute{
		ChannelStateHash: stateHash,
		Nonce:            big.NewInt(7),
		MerkleRoot:       root,
		ConsensusExpiry:  big.NewInt(1000),
		DefundExpiry:     big.NewInt(2000),
	}))

	chain.backend = simulated.NewBackend(types.GenesisAlloc{
		testAddress:             {Balance: new(big.Int).Mul(big.NewInt(1000), big.NewInt(params.Ether))},
		chain.registry:          {Code: chain.registryCode, Balance: new(big.Int)},
		chain.createDefinition:  {Code: chain.createCode, Balance: new(big.Int)},
		chain.resolveDefinition: {Code: chain.resolveCode, Balance: new(big.Int)},
		chain.emptyChannel:      {Balance: big.NewInt(777)},
		chain.watchedChannel:    {Code: logEmitterCode, Balance: new(big.Int)},
		chain.disputedChannel:   {Code: disputeCode, Balance: new(big.Int)},
	})
	t.Cleanup(func() { _ = chain.backend.Close() })

	config := TestConfig
	chain.reader, err = NewReader(func() *Config { return &config }, map[uint64]chaintypes.ChainClient{
		simulatedChainID: chain.backend.Client(),
	}, nil)
	require.NoError(t, err)
	return chain
}

func (c *simulatedChain) send(t *testing.T, to common.Address, data []byte) {
	t.Helper()
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(simulatedChainID),
		Nonce:     c.nonce,
		GasTipCap: big.NewInt(params.GWei),
		GasFeeCap: big.NewInt(100 * params.GWei),
		Gas:       1_000_000,
		To:        &to,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(simulatedChainID)), testKey)
	require.NoError(t, err)
	require.NoError(t, c.backend.Client().SendTransaction(context.Background(), signed))
	c.nonce++
}

func eventCalldata(t *testing.T, kind EventKind, args ...interface{}) []byte {
	t.Helper()
	event := ChannelABI.Events[kind.String()]
	data, err := event.Inputs.NonIndexed().Pack(args...)
	require.NoError(t, err)
	return append(event.ID.Bytes(), data...)
}

func TestTotalDepositedBUsesRawBalanceWhenUndeployed(t *testing.T) {
	chain := newSimulatedChain(t)
	ctx := context.Background()
	code, err := chain.reader.GetCode(ctx, simulatedChainID, chain.emptyChannel, chaintypes.SafeBlock)
	require.NoError(t, err)
	require.Empty(t, code)

	deposited, err := chain.reader.GetTotalDepositedB(ctx, simulatedChainID, chain.emptyChannel, chaintypes.NativeAsset, chaintypes.SafeBlock)
	require.NoError(t, err)
	require.Equal(t, "777", deposited.String())

	depositedA, err := chain.reader.GetTotalDepositedA(ctx, simulatedChainID, chain.emptyChannel, chaintypes.NativeAsset, chaintypes.SafeBlock)
	require.NoError(t, err)
	require.Zero(t, depositedA.Sign())
}

func TestRegistryLookups(t *testing.T) {
	chain := newSimulatedChain(t)
	ctx := context.Background()

	local, err := chain.reader.GetRegisteredTransfers(ctx, simulatedChainID, chain.registry, chain.registryCode, chaintypes.SafeBlock)
	require.NoError(t, err)
	require.Len(t, local, 2)
	require.Equal(t, hashlockStateEncoding, local[0].StateEncoding)
	require.Equal(t, hashlockResolverEncoding, local[0].ResolverEncoding)

	byName, err := chain.reader.GetRegisteredTransferByName(ctx, simulatedChainID, "Withdraw", chain.registry, nil, chaintypes.SafeBlock)
	require.NoError(t, err)
	require.Equal(t, chain.resolveDefinition, byName.Definition)

	byDefinition, err := chain.reader.GetRegisteredTransferByDefinition(ctx, simulatedChainID, chain.createDefinition, chain.registry, nil, chaintypes.SafeBlock)
	require.NoError(t, err)
	require.Equal(t, "HashlockTransfer", byDefinition.Name)
	require.Equal(t, make([]byte, 32), byDefinition.EncodedCancel)
}

func TestRegistryLiveLoadMatchesLocal(t *testing.T) {
	live := newSimulatedChain(t)
	fromChain, err := live.reader.GetRegisteredTransfers(context.Background(), simulatedChainID, live.registry, nil, chaintypes.SafeBlock)
	require.NoError(t, err)
	fromLocal, err := loadRegistryUncached(t, live.reader, live.registry, live.registryCode)
	require.NoError(t, err)
	if diff := cmp.Diff(fromChain, fromLocal); diff != "" {
		t.Fatalf("registry mismatch (-live +local):\n%s", diff)
	}
}

// loadRegistryUncached loads the registry through a fresh cache.
func loadRegistryUncached(t *testing.T, r *Reader, registry common.Address, bytecode []byte) ([]chaintypes.RegisteredTransfer, error) {
	t.Helper()
	saved := r.registry
	r.registry = newRegistryCache()
	defer func() { r.registry = saved }()
	client, err := r.client(simulatedChainID)
	require.NoError(t, err)
	return r.loadRegistry(context.Background(), client, simulatedChainID, registry, bytecode, chaintypes.LatestBlock())
}

func TestRegistryMissCarriesKeyAndRegistry(t *testing.T) {
	chain := newSimulatedChain(t)
	ctx := context.Background()
	missing := testhelpers.RandomAddress()
	_, err := chain.reader.GetRegisteredTransferByDefinition(ctx, simulatedChainID, missing, chain.registry, nil, chaintypes.SafeBlock)
	require.ErrorIs(t, err, ErrTransferNotRegistered)
	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
	require.Equal(t, missing, chainErr.Details["definition"])
	require.Equal(t, chain.registry, chainErr.Details["transferRegistry"])
	require.Equal(t, uint64(simulatedChainID), chainErr.ChainID)
	require.Empty(t, chainErr.Attempts)

	_, err = chain.reader.GetRegisteredTransferByName(ctx, simulatedChainID, "Nope", chain.registry, nil, chaintypes.SafeBlock)
	require.ErrorIs(t, err, ErrTransferNotRegistered)
	require.ErrorAs(t, err, &chainErr)
	require.Equal(t, "Nope", chainErr.Details["name"])
}

func hashlockState() abicodec.Values {
	return abicodec.Values{
		"lockHash": testhelpers.RandomHash(),
		"expiry":   "100",
	}
}

func TestCreateLocalAndLiveAgree(t *testing.T) {
	chain := newSimulatedChain(t)
	ctx := context.Background()
	handler := testhelpers.InitTestLog(t, slog.LevelError)
	balance := chaintypes.NewBalance(big.NewInt(10), big.NewInt(0), testhelpers.RandomAddress(), testhelpers.RandomAddress())
	state := hashlockState()

	local, err := chain.reader.Create(ctx, simulatedChainID, state, balance, chain.createDefinition, chain.registry, chain.createCode, chaintypes.SafeBlock)
	require.NoError(t, err)
	require.True(t, local)
	require.False(t, handler.WasLogged("Calling transfer definition onchain"))

	live, err := chain.reader.Create(ctx, simulatedChainID, state, balance, chain.createDefinition, chain.registry, nil, chaintypes.SafeBlock)
	require.NoError(t, err)
	require.Equal(t, local, live)
	require.True(t, handler.WasLogged("Calling transfer definition onchain"))
}

func TestCreateFallsBackWhenLocalExecutionFails(t *testing.T) {
	chain := newSimulatedChain(t)
	handler := testhelpers.InitTestLog(t, slog.LevelError)
	balance := chaintypes.NewBalance(big.NewInt(10), big.NewInt(0), testhelpers.RandomAddress(), testhelpers.RandomAddress())
	valid, err := chain.reader.Create(context.Background(), simulatedChainID, hashlockState(), balance, chain.createDefinition, chain.registry, revertCode, chaintypes.SafeBlock)
	require.NoError(t, err)
	require.True(t, valid)
	require.True(t, handler.WasLogged("Local evaluation failed"))
	require.True(t, handler.WasLogged("Calling transfer definition onchain"))
}

func TestCreateEncodingFailure(t *testing.T) {
	chain := newSimulatedChain(t)
	balance := chaintypes.NewBalance(big.NewInt(10), big.NewInt(0), testhelpers.RandomAddress(), testhelpers.RandomAddress())
	_, err := chain.reader.Create(context.Background(), simulatedChainID, abicodec.Values{"lockHash": "0x12"}, balance, chain.createDefinition, chain.registry, chain.createCode, chaintypes.SafeBlock)
	require.ErrorIs(t, err, ErrEncodingFailure)

	balance.Amount[0] = big.NewInt(-1)
	_, err = chain.reader.Create(context.Background(), simulatedChainID, hashlockState(), balance, chain.createDefinition, chain.registry, chain.createCode, chaintypes.SafeBlock)
	require.ErrorIs(t, err, ErrEncodingFailure)
}

func TestResolveLocalAndLiveAgree(t *testing.T) {
	chain := newSimulatedChain(t)
	ctx := context.Background()
	transfer := &chaintypes.FullTransferState{
		CoreTransferState: *testhelpers.RandomTransfer(chain.watchedChannel),
		TransferState:     hashlockState(),
		TransferResolver:  abicodec.Values{"preImage": testhelpers.RandomHash()},
		TransferEncodings: [2]string{hashlockStateEncoding, hashlockResolverEncoding},
	}
	transfer.TransferDefinition = chain.resolveDefinition

	local, err := chain.reader.Resolve(ctx, simulatedChainID, transfer, chain.resolveCode, chaintypes.SafeBlock)
	require.NoError(t, err)
	live, err := chain.reader.Resolve(ctx, simulatedChainID, transfer, nil, chaintypes.SafeBlock)
	require.NoError(t, err)
	fallback, err := chain.reader.Resolve(ctx, simulatedChainID, transfer, revertCode, chaintypes.SafeBlock)
	require.NoError(t, err)
	for _, got := range []chaintypes.Balance{local, live, fallback} {
		if diff := cmp.Diff(chain.resolvedBalance, got, bigComparer); diff != "" {
			t.Fatalf("resolved balance mismatch (-want +got):\n%s", diff)
		}
	}

	transfer.TransferEncodings[1] = "tuple(uint256 preImage"
	_, err = chain.reader.Resolve(ctx, simulatedChainID, transfer, chain.resolveCode, chaintypes.SafeBlock)
	require.ErrorIs(t, err, ErrEncodingFailure)
}

type memoryStore struct {
	state        *chaintypes.CoreChannelState
	transfers    []*chaintypes.CoreTransferState
	transfersErr error
}

func (s *memoryStore) GetChannelState(ctx context.Context, channel common.Address) (*chaintypes.CoreChannelState, error) {
	return s.state, nil
}

func (s *memoryStore) GetActiveTransfers(ctx context.Context, channel common.Address) ([]*chaintypes.CoreTransferState, error) {
	return s.transfers, s.transfersErr
}

func TestVerifyChannelDispute(t *testing.T) {
	chain := newSimulatedChain(t)
	ctx := context.Background()

	dispute, err := chain.reader.GetChannelDispute(ctx, simulatedChainID, chain.disputedChannel, chaintypes.SafeBlock)
	require.NoError(t, err)
	require.NotNil(t, dispute)
	require.Equal(t, chain.disputedState.MerkleRoot, dispute.MerkleRoot)
	require.Equal(t, "2000", dispute.DefundExpiry.String())

	store := &memoryStore{state: chain.disputedState, transfers: chain.disputedTransfers}
	verification, err := chain.reader.VerifyChannelDispute(ctx, simulatedChainID, chain.disputedChannel, store)
	require.NoError(t, err)
	require.True(t, verification.Matches())

	for _, transfer := range chain.disputedTransfers {
		proof, err := chain.reader.ProveTransfer(ctx, chain.disputedChannel, transfer.TransferID, store)
		require.NoError(t, err)
		require.True(t, proof.IsCorrect())
		require.Equal(t, dispute.MerkleRoot, proof.RootHash)
	}

	stale := &memoryStore{state: chain.disputedState, transfers: chain.disputedTransfers[1:]}
	verification, err = chain.reader.VerifyChannelDispute(ctx, simulatedChainID, chain.disputedChannel, stale)
	require.NoError(t, err)
	require.False(t, verification.RootMatches)
	require.True(t, verification.StateHashMatches)
	require.False(t, verification.Matches())

	_, err = chain.reader.ProveTransfer(ctx, chain.disputedChannel, chain.disputedTransfers[0].TransferID, stale)
	require.ErrorIs(t, err, merkletree.ErrTransferNotInTree)

	undisputed, err := chain.reader.VerifyChannelDispute(ctx, simulatedChainID, chain.emptyChannel, &memoryStore{state: chain.disputedState})
	require.NoError(t, err)
	require.Nil(t, undisputed.Dispute)
	require.False(t, undisputed.Matches())
}

func TestVerifyChannelDisputeStoreFailures(t *testing.T) {
	chain := newSimulatedChain(t)
	ctx := context.Background()

	var err error
	require.NotPanics(t, func() {
		_, err = chain.reader.VerifyChannelDispute(ctx, simulatedChainID, chain.disputedChannel, &memoryStore{transfers: chain.disputedTransfers})
	})
	require.ErrorIs(t, err, ErrChannelNotInStore)
	require.NotErrorIs(t, err, ErrEncodingFailure)

	storeDown := errors.New("store unavailable")
	failing := &memoryStore{state: chain.disputedState, transfersErr: storeDown}
	_, err = chain.reader.VerifyChannelDispute(ctx, simulatedChainID, chain.disputedChannel, failing)
	require.ErrorIs(t, err, storeDown)
	require.NotErrorIs(t, err, ErrEncodingFailure)

	_, err = chain.reader.ProveTransfer(ctx, chain.disputedChannel, chain.disputedTransfers[0].TransferID, failing)
	require.ErrorIs(t, err, storeDown)
	require.NotErrorIs(t, err, ErrEncodingFailure)

	withHole := &memoryStore{state: chain.disputedState, transfers: []*chaintypes.CoreTransferState{chain.disputedTransfers[0], nil}}
	_, err = chain.reader.VerifyChannelDispute(ctx, simulatedChainID, chain.disputedChannel, withHole)
	require.ErrorIs(t, err, ErrEncodingFailure)
}

func TestRegisteredChannelEvents(t *testing.T) {
	chain := newSimulatedChain(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := chain.reader.RegisterChannel(ctx, simulatedChainID, chain.watchedChannel)
	require.Error(t, err, "registering before start")

	chain.reader.Start(ctx)
	defer chain.reader.StopAndWait()

	state := chaintypes.CoreChannelState{
		ChannelAddress:     chain.watchedChannel,
		Alice:              testhelpers.RandomAddress(),
		Bob:                testhelpers.RandomAddress(),
		AssetIDs:           []common.Address{chaintypes.NativeAsset},
		Balances:           []chaintypes.Balance{chaintypes.NewBalance(big.NewInt(5), big.NewInt(6), testhelpers.RandomAddress(), testhelpers.RandomAddress())},
		ProcessedDepositsA: []*big.Int{big.NewInt(5)},
		ProcessedDepositsB: []*big.Int{big.NewInt(6)},
		DefundNonces:       []*big.Int{big.NewInt(1)},
		Timeout:            big.NewInt(3600),
		Nonce:              99,
		MerkleRoot:         testhelpers.RandomHash(),
	}
	dispute := chaintypes.ABIChannelDispute{
		ChannelStateHash: testhelpers.RandomHash(),
		Nonce:            big.NewInt(99),
		MerkleRoot:       state.MerkleRoot,
		ConsensusExpiry:  big.NewInt(10),
		DefundExpiry:     big.NewInt(20),
	}
	disputer := testhelpers.RandomAddress()

	// Emitted before registration, never delivered.
	chain.send(t, chain.watchedChannel, eventCalldata(t, ChannelDisputed, disputer, state.ToABI(), dispute))
	chain.backend.Commit()

	received := make(chan Event, 8)
	for _, kind := range EventKinds {
		chain.reader.Events().On(kind, func(e Event) { received <- e }, nil)
	}
	require.NoError(t, chain.reader.RegisterChannel(ctx, simulatedChainID, chain.watchedChannel))
	require.NoError(t, chain.reader.RegisterChannel(ctx, simulatedChainID, chain.watchedChannel))
	require.True(t, chain.reader.IsChannelRegistered(simulatedChainID, chain.watchedChannel))
	require.False(t, chain.reader.IsChannelRegistered(simulatedChainID, chain.emptyChannel))

	state.Nonce = 100
	dispute.Nonce = big.NewInt(100)
	transfer := testhelpers.RandomTransfer(chain.watchedChannel)
	transferDispute := chaintypes.ABITransferDispute{
		TransferStateHash:     testhelpers.RandomHash(),
		TransferDisputeExpiry: big.NewInt(30),
		IsDefunded:            true,
	}
	finalBalance := chaintypes.NewBalance(big.NewInt(0), big.NewInt(42), transfer.Initiator, transfer.Responder)
	chain.send(t, chain.watchedChannel, eventCalldata(t, ChannelDisputed, disputer, state.ToABI(), dispute))
	chain.send(t, chain.watchedChannel, eventCalldata(t, TransferDefunded,
		disputer, transfer.ToABI(), transferDispute, []byte{1, 2, 3}, []byte{4}, finalBalance.ToABI()))
	chain.backend.Commit()

	next := func() Event {
		select {
		case e := <-received:
			return e
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for dispute event")
			return nil
		}
	}

	first, ok := next().(*ChannelDisputedEvent)
	require.True(t, ok)
	require.Equal(t, uint64(simulatedChainID), first.ChainID)
	require.Equal(t, disputer, first.Disputer)
	if diff := cmp.Diff(state, first.State, bigComparer); diff != "" {
		t.Fatalf("channel state mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, "100", first.Dispute.Nonce.String())

	second, ok := next().(*TransferDefundedEvent)
	require.True(t, ok)
	if diff := cmp.Diff(*transfer, second.State, bigComparer); diff != "" {
		t.Fatalf("transfer state mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, transfer.TransferID, second.Dispute.TransferID)
	require.True(t, second.Dispute.IsDefunded)
	require.Equal(t, []byte{1, 2, 3}, second.EncodedInitialState)
	require.Equal(t, []byte{4}, second.EncodedTransferResolver)
	if diff := cmp.Diff(finalBalance, second.Balance, bigComparer); diff != "" {
		t.Fatalf("balance mismatch (-want +got):\n%s", diff)
	}

	select {
	case e := <-received:
		t.Fatalf("unexpected extra event %v", e.Kind())
	case <-time.After(3 * TestConfig.PollInterval):
	}
}
