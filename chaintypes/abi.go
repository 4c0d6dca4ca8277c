// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package chaintypes

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// The ABI* structs mirror the solidity structs of the channel contracts field
// for field, so go-ethereum can pack them and convert unpacked values into them.

type ABIBalance struct {
	Amount [2]*big.Int
	To     [2]common.Address
}

type ABICoreChannelState struct {
	ChannelAddress     common.Address
	Alice              common.Address
	Bob                common.Address
	AssetIds           []common.Address
	Balances           []ABIBalance
	ProcessedDepositsA []*big.Int
	ProcessedDepositsB []*big.Int
	DefundNonces       []*big.Int
	Timeout            *big.Int
	Nonce              *big.Int
	MerkleRoot         [32]byte
}

type ABICoreTransferState struct {
	ChannelAddress     common.Address
	TransferId         [32]byte
	TransferDefinition common.Address
	Initiator          common.Address
	Responder          common.Address
	AssetId            common.Address
	Balance            ABIBalance
	TransferTimeout    *big.Int
	InitialStateHash   [32]byte
}

type ABIChannelDispute struct {
	ChannelStateHash [32]byte
	Nonce            *big.Int
	MerkleRoot       [32]byte
	ConsensusExpiry  *big.Int
	DefundExpiry     *big.Int
}

type ABITransferDispute struct {
	TransferStateHash     [32]byte
	TransferDisputeExpiry *big.Int
	IsDefunded            bool
}

type ABIRegisteredTransfer struct {
	Name             string
	Definition       common.Address
	StateEncoding    string
	ResolverEncoding string
	EncodedCancel    []byte
}

type ABIWithdrawData struct {
	ChannelAddress common.Address
	AssetId        common.Address
	Recipient      common.Address
	Amount         *big.Int
	Nonce          *big.Int
	CallTo         common.Address
	CallData       []byte
}

var (
	balanceComponents = []abi.ArgumentMarshaling{
		{Name: "amount", Type: "uint256[2]"},
		{Name: "to", Type: "address[2]"},
	}
	coreChannelStateComponents = []abi.ArgumentMarshaling{
		{Name: "channelAddress", Type: "address"},
		{Name: "alice", Type: "address"},
		{Name: "bob", Type: "address"},
		{Name: "assetIds", Type: "address[]"},
		{Name: "balances", Type: "tuple[]", Components: balanceComponents},
		{Name: "processedDepositsA", Type: "uint256[]"},
		{Name: "processedDepositsB", Type: "uint256[]"},
		{Name: "defundNonces", Type: "uint256[]"},
		{Name: "timeout", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "merkleRoot", Type: "bytes32"},
	}
	coreTransferStateComponents = []abi.ArgumentMarshaling{
		{Name: "channelAddress", Type: "address"},
		{Name: "transferId", Type: "bytes32"},
		{Name: "transferDefinition", Type: "address"},
		{Name: "initiator", Type: "address"},
		{Name: "responder", Type: "address"},
		{Name: "assetId", Type: "address"},
		{Name: "balance", Type: "tuple", Components: balanceComponents},
		{Name: "transferTimeout", Type: "uint256"},
		{Name: "initialStateHash", Type: "bytes32"},
	}
)

var (
	BalanceType           = mustNewTupleType(balanceComponents)
	CoreChannelStateType  = mustNewTupleType(coreChannelStateComponents)
	CoreTransferStateType = mustNewTupleType(coreTransferStateComponents)
)

func mustNewTupleType(components []abi.ArgumentMarshaling) abi.Type {
	t, err := abi.NewType("tuple", "", components)
	if err != nil {
		panic(err)
	}
	return t
}

var (
	ErrNilAmount      = errors.New("nil amount")
	ErrAmountTooLarge = errors.New("amount does not fit in uint256")
	ErrNegativeAmount = errors.New("negative amount")
	ErrNilState       = errors.New("nil state")
)

// checkUint256 rejects values abi packing would silently wrap.
func checkUint256(field string, value *big.Int) error {
	if value == nil {
		return fmt.Errorf("%s: %w", field, ErrNilAmount)
	}
	if value.Sign() < 0 {
		return fmt.Errorf("%s: %w", field, ErrNegativeAmount)
	}
	if _, overflow := uint256.FromBig(value); overflow {
		return fmt.Errorf("%s: %w", field, ErrAmountTooLarge)
	}
	return nil
}

func (b Balance) Validate() error {
	for i, amount := range b.Amount {
		if err := checkUint256(fmt.Sprintf("balance.amount[%d]", i), amount); err != nil {
			return err
		}
	}
	return nil
}

func (b Balance) ToABI() ABIBalance {
	return ABIBalance{Amount: b.Amount, To: b.To}
}

func BalanceFromABI(b ABIBalance) Balance {
	return Balance{
		Amount: [2]*big.Int{orZero(b.Amount[0]), orZero(b.Amount[1])},
		To:     b.To,
	}
}

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}

func (s *CoreTransferState) ToABI() ABICoreTransferState {
	return ABICoreTransferState{
		ChannelAddress:     s.ChannelAddress,
		TransferId:         s.TransferID,
		TransferDefinition: s.TransferDefinition,
		Initiator:          s.Initiator,
		Responder:          s.Responder,
		AssetId:            s.AssetID,
		Balance:            s.Balance.ToABI(),
		TransferTimeout:    s.TransferTimeout,
		InitialStateHash:   s.InitialStateHash,
	}
}

func CoreTransferStateFromABI(s ABICoreTransferState) CoreTransferState {
	return CoreTransferState{
		ChannelAddress:     s.ChannelAddress,
		TransferID:         s.TransferId,
		TransferDefinition: s.TransferDefinition,
		Initiator:          s.Initiator,
		Responder:          s.Responder,
		AssetID:            s.AssetId,
		Balance:            BalanceFromABI(s.Balance),
		TransferTimeout:    orZero(s.TransferTimeout),
		InitialStateHash:   s.InitialStateHash,
	}
}

func (s *CoreTransferState) Validate() error {
	if err := s.Balance.Validate(); err != nil {
		return err
	}
	return checkUint256("transferTimeout", s.TransferTimeout)
}

func (s *CoreChannelState) ToABI() ABICoreChannelState {
	balances := make([]ABIBalance, len(s.Balances))
	for i, balance := range s.Balances {
		balances[i] = balance.ToABI()
	}
	return ABICoreChannelState{
		ChannelAddress:     s.ChannelAddress,
		Alice:              s.Alice,
		Bob:                s.Bob,
		AssetIds:           nonNilAddresses(s.AssetIDs),
		Balances:           balances,
		ProcessedDepositsA: nonNilInts(s.ProcessedDepositsA),
		ProcessedDepositsB: nonNilInts(s.ProcessedDepositsB),
		DefundNonces:       nonNilInts(s.DefundNonces),
		Timeout:            s.Timeout,
		Nonce:              new(big.Int).SetUint64(s.Nonce),
		MerkleRoot:         s.MerkleRoot,
	}
}

func CoreChannelStateFromABI(s ABICoreChannelState) CoreChannelState {
	balances := make([]Balance, len(s.Balances))
	for i, balance := range s.Balances {
		balances[i] = BalanceFromABI(balance)
	}
	return CoreChannelState{
		ChannelAddress:     s.ChannelAddress,
		Alice:              s.Alice,
		Bob:                s.Bob,
		AssetIDs:           s.AssetIds,
		Balances:           balances,
		ProcessedDepositsA: s.ProcessedDepositsA,
		ProcessedDepositsB: s.ProcessedDepositsB,
		DefundNonces:       s.DefundNonces,
		Timeout:            orZero(s.Timeout),
		Nonce:              orZero(s.Nonce).Uint64(),
		MerkleRoot:         s.MerkleRoot,
	}
}

func (s *CoreChannelState) Validate() error {
	for i, balance := range s.Balances {
		if err := balance.Validate(); err != nil {
			return fmt.Errorf("balances[%d]: %w", i, err)
		}
	}
	lists := map[string][]*big.Int{
		"processedDepositsA": s.ProcessedDepositsA,
		"processedDepositsB": s.ProcessedDepositsB,
		"defundNonces":       s.DefundNonces,
	}
	for name, values := range lists {
		for i, value := range values {
			if err := checkUint256(fmt.Sprintf("%s[%d]", name, i), value); err != nil {
				return err
			}
		}
	}
	return checkUint256("timeout", s.Timeout)
}

func ChannelDisputeFromABI(d ABIChannelDispute) ChannelDispute {
	return ChannelDispute{
		ChannelStateHash: d.ChannelStateHash,
		Nonce:            orZero(d.Nonce),
		MerkleRoot:       d.MerkleRoot,
		ConsensusExpiry:  orZero(d.ConsensusExpiry),
		DefundExpiry:     orZero(d.DefundExpiry),
	}
}

func TransferDisputeFromABI(transferID common.Hash, d ABITransferDispute) TransferDispute {
	return TransferDispute{
		TransferID:            transferID,
		TransferStateHash:     d.TransferStateHash,
		TransferDisputeExpiry: orZero(d.TransferDisputeExpiry),
		IsDefunded:            d.IsDefunded,
	}
}

func (w *WithdrawCommitment) ToABI() ABIWithdrawData {
	callData := w.CallData
	if callData == nil {
		callData = []byte{}
	}
	return ABIWithdrawData{
		ChannelAddress: w.ChannelAddress,
		AssetId:        w.AssetID,
		Recipient:      w.Recipient,
		Amount:         orZero(w.Amount),
		Nonce:          orZero(w.Nonce),
		CallTo:         w.CallTo,
		CallData:       callData,
	}
}

func nonNilAddresses(in []common.Address) []common.Address {
	if in == nil {
		return []common.Address{}
	}
	return in
}

func nonNilInts(in []*big.Int) []*big.Int {
	if in == nil {
		return []*big.Int{}
	}
	return in
}
