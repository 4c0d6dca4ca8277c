// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package testhelpers

import (
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/offchainlabs/vector-reader/chaintypes"
)

type PseudoRandomDataSource struct {
	salt  common.Hash
	index int64
}

// pseudorandom source that repeats on different executions
// T param is to make sure it's only used in testing
func NewPseudoRandomDataSource(_ *testing.T, saltParam int) *PseudoRandomDataSource {
	salt := crypto.Keccak256Hash([]byte{'s'}, common.BigToHash(big.NewInt(int64(saltParam))).Bytes())
	return &PseudoRandomDataSource{
		salt:  salt,
		index: 0,
	}
}

func (r *PseudoRandomDataSource) GetHash() common.Hash {
	r.index++
	return crypto.Keccak256Hash(r.salt[:], common.BigToHash(big.NewInt(r.index)).Bytes())
}

func (r *PseudoRandomDataSource) GetAddress() common.Address {
	return common.BytesToAddress(r.GetHash().Bytes()[:20])
}

func (r *PseudoRandomDataSource) GetUint64() uint64 {
	return binary.BigEndian.Uint64(r.GetHash().Bytes()[:8])
}

func (r *PseudoRandomDataSource) GetData(size int) []byte {
	ret := []byte{}
	for len(ret) < size {
		ret = append(ret, r.GetHash().Bytes()...)
	}
	return ret[:size]
}

// GetTransfer builds a transfer whose every field is drawn from the source.
func (r *PseudoRandomDataSource) GetTransfer(channel common.Address) *chaintypes.CoreTransferState {
	initiator, responder := r.GetAddress(), r.GetAddress()
	amountA := new(big.Int).SetUint64(r.GetUint64())
	amountB := new(big.Int).SetUint64(r.GetUint64())
	return &chaintypes.CoreTransferState{
		ChannelAddress:     channel,
		TransferID:         r.GetHash(),
		TransferDefinition: r.GetAddress(),
		Initiator:          initiator,
		Responder:          responder,
		AssetID:            r.GetAddress(),
		Balance:            chaintypes.NewBalance(amountA, amountB, initiator, responder),
		TransferTimeout:    new(big.Int).SetUint64(r.GetUint64() % 1_000_000),
		InitialStateHash:   r.GetHash(),
	}
}
