// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package chaintypes

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EncodeBalance returns abi.encode(Balance) as the channel contracts expect it.
func EncodeBalance(b Balance) ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return abi.Arguments{{Type: BalanceType}}.Pack(b.ToABI())
}

// DecodeBalance is the inverse of EncodeBalance.
func DecodeBalance(data []byte) (Balance, error) {
	values, err := abi.Arguments{{Type: BalanceType}}.Unpack(data)
	if err != nil {
		return Balance{}, err
	}
	if len(values) != 1 {
		return Balance{}, fmt.Errorf("expected one balance, got %d values", len(values))
	}
	decoded := *abi.ConvertType(values[0], new(ABIBalance)).(*ABIBalance)
	return BalanceFromABI(decoded), nil
}

func EncodeCoreTransferState(s *CoreTransferState) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("transfer: %w", ErrNilState)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("transfer %v: %w", s.TransferID, err)
	}
	return abi.Arguments{{Type: CoreTransferStateType}}.Pack(s.ToABI())
}

// HashCoreTransferState is the merkle leaf of a transfer.
func HashCoreTransferState(s *CoreTransferState) (common.Hash, error) {
	encoded, err := EncodeCoreTransferState(s)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

func EncodeCoreChannelState(s *CoreChannelState) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("channel: %w", ErrNilState)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("channel %v: %w", s.ChannelAddress, err)
	}
	return abi.Arguments{{Type: CoreChannelStateType}}.Pack(s.ToABI())
}

// HashCoreChannelState is compared against ChannelDispute.ChannelStateHash.
func HashCoreChannelState(s *CoreChannelState) (common.Hash, error) {
	encoded, err := EncodeCoreChannelState(s)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}
