// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package chaintypes holds the channel and transfer records shared between the
// chain reader and the merkle commitment engine, along with their canonical
// ABI encodings.
package chaintypes

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Balance is the (amount, destination) pair for the two participants of a
// channel or transfer. Index 0 belongs to alice/initiator, index 1 to
// bob/responder.
type Balance struct {
	Amount [2]*big.Int       `json:"amount"`
	To     [2]common.Address `json:"to"`
}

// NewBalance copies the given amounts so callers can keep mutating theirs.
func NewBalance(amountA, amountB *big.Int, toA, toB common.Address) Balance {
	return Balance{
		Amount: [2]*big.Int{new(big.Int).Set(amountA), new(big.Int).Set(amountB)},
		To:     [2]common.Address{toA, toB},
	}
}

// Total returns the sum of both amounts, treating nil as zero.
func (b Balance) Total() *big.Int {
	total := new(big.Int)
	for _, amount := range b.Amount {
		if amount != nil {
			total.Add(total, amount)
		}
	}
	return total
}

type CoreChannelState struct {
	ChannelAddress     common.Address   `json:"channelAddress"`
	Alice              common.Address   `json:"alice"`
	Bob                common.Address   `json:"bob"`
	AssetIDs           []common.Address `json:"assetIds"`
	Balances           []Balance        `json:"balances"`
	ProcessedDepositsA []*big.Int       `json:"processedDepositsA"`
	ProcessedDepositsB []*big.Int       `json:"processedDepositsB"`
	DefundNonces       []*big.Int       `json:"defundNonces"`
	Timeout            *big.Int         `json:"timeout"`
	Nonce              uint64           `json:"nonce"`
	MerkleRoot         common.Hash      `json:"merkleRoot"`
}

type CoreTransferState struct {
	ChannelAddress     common.Address `json:"channelAddress"`
	TransferID         common.Hash    `json:"transferId"`
	TransferDefinition common.Address `json:"transferDefinition"`
	Initiator          common.Address `json:"initiator"`
	Responder          common.Address `json:"responder"`
	AssetID            common.Address `json:"assetId"`
	Balance            Balance        `json:"balance"`
	TransferTimeout    *big.Int       `json:"transferTimeout"`
	InitialStateHash   common.Hash    `json:"initialStateHash"`
}

// FullTransferState is a core transfer plus the definition-specific state and
// resolver, in the JSON-like form understood by the abicodec package.
type FullTransferState struct {
	CoreTransferState
	TransferState     map[string]any `json:"transferState"`
	TransferResolver  map[string]any `json:"transferResolver,omitempty"`
	TransferEncodings [2]string      `json:"transferEncodings"`
}

// ChannelDispute is the dispute record stored by a channel contract.
type ChannelDispute struct {
	ChannelStateHash common.Hash `json:"channelStateHash"`
	Nonce            *big.Int    `json:"nonce"`
	MerkleRoot       common.Hash `json:"merkleRoot"`
	ConsensusExpiry  *big.Int    `json:"consensusExpiry"`
	DefundExpiry     *big.Int    `json:"defundExpiry"`
}

type TransferDispute struct {
	TransferID            common.Hash `json:"transferId"`
	TransferStateHash     common.Hash `json:"transferStateHash"`
	TransferDisputeExpiry *big.Int    `json:"transferDisputeExpiry"`
	IsDefunded            bool        `json:"isDefunded"`
}

// RegisteredTransfer is one entry of an on-chain transfer registry.
type RegisteredTransfer struct {
	Name             string         `json:"name"`
	Definition       common.Address `json:"definition"`
	StateEncoding    string         `json:"stateEncoding"`
	ResolverEncoding string         `json:"resolverEncoding"`
	EncodedCancel    []byte         `json:"encodedCancel"`
}

// WithdrawCommitment identifies a withdrawal whose on-chain execution record
// can be looked up on the channel contract.
type WithdrawCommitment struct {
	ChannelAddress common.Address `json:"channelAddress"`
	AssetID        common.Address `json:"assetId"`
	Recipient      common.Address `json:"recipient"`
	Amount         *big.Int       `json:"amount"`
	Nonce          *big.Int       `json:"nonce"`
	CallTo         common.Address `json:"callTo"`
	CallData       []byte         `json:"callData"`
}

// SyncStatus mirrors eth_syncing. Syncing is false when the node is caught up.
type SyncStatus struct {
	Syncing       bool   `json:"syncing"`
	StartingBlock uint64 `json:"startingBlock"`
	CurrentBlock  uint64 `json:"currentBlock"`
	HighestBlock  uint64 `json:"highestBlock"`
}
