// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package chaintypes

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
)

// Amounts are written as decimal strings so uint256 values survive JSON
// consumers that parse numbers as float64. Hex strings are accepted on input.

func decimals(values []*big.Int) []*math.Decimal256 {
	if values == nil {
		return nil
	}
	out := make([]*math.Decimal256, len(values))
	for i, v := range values {
		out[i] = (*math.Decimal256)(v)
	}
	return out
}

func bigs(values []*math.Decimal256) []*big.Int {
	if values == nil {
		return nil
	}
	out := make([]*big.Int, len(values))
	for i, v := range values {
		out[i] = (*big.Int)(v)
	}
	return out
}

func (b Balance) MarshalJSON() ([]byte, error) {
	type Balance struct {
		Amount [2]*math.Decimal256 `json:"amount"`
		To     [2]common.Address   `json:"to"`
	}
	var enc Balance
	enc.Amount[0] = (*math.Decimal256)(b.Amount[0])
	enc.Amount[1] = (*math.Decimal256)(b.Amount[1])
	enc.To = b.To
	return json.Marshal(&enc)
}

func (b *Balance) UnmarshalJSON(input []byte) error {
	type Balance struct {
		Amount [2]*math.Decimal256 `json:"amount"`
		To     [2]common.Address   `json:"to"`
	}
	var dec Balance
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	b.Amount[0] = (*big.Int)(dec.Amount[0])
	b.Amount[1] = (*big.Int)(dec.Amount[1])
	b.To = dec.To
	return nil
}

type channelStateJSON struct {
	ChannelAddress     common.Address     `json:"channelAddress"`
	Alice              common.Address     `json:"alice"`
	Bob                common.Address     `json:"bob"`
	AssetIDs           []common.Address   `json:"assetIds"`
	Balances           []Balance          `json:"balances"`
	ProcessedDepositsA []*math.Decimal256 `json:"processedDepositsA"`
	ProcessedDepositsB []*math.Decimal256 `json:"processedDepositsB"`
	DefundNonces       []*math.Decimal256 `json:"defundNonces"`
	Timeout            *math.Decimal256   `json:"timeout"`
	Nonce              uint64             `json:"nonce"`
	MerkleRoot         common.Hash        `json:"merkleRoot"`
}

func (s CoreChannelState) MarshalJSON() ([]byte, error) {
	return json.Marshal(&channelStateJSON{
		ChannelAddress:     s.ChannelAddress,
		Alice:              s.Alice,
		Bob:                s.Bob,
		AssetIDs:           s.AssetIDs,
		Balances:           s.Balances,
		ProcessedDepositsA: decimals(s.ProcessedDepositsA),
		ProcessedDepositsB: decimals(s.ProcessedDepositsB),
		DefundNonces:       decimals(s.DefundNonces),
		Timeout:            (*math.Decimal256)(s.Timeout),
		Nonce:              s.Nonce,
		MerkleRoot:         s.MerkleRoot,
	})
}

func (s *CoreChannelState) UnmarshalJSON(input []byte) error {
	var dec channelStateJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	*s = CoreChannelState{
		ChannelAddress:     dec.ChannelAddress,
		Alice:              dec.Alice,
		Bob:                dec.Bob,
		AssetIDs:           dec.AssetIDs,
		Balances:           dec.Balances,
		ProcessedDepositsA: bigs(dec.ProcessedDepositsA),
		ProcessedDepositsB: bigs(dec.ProcessedDepositsB),
		DefundNonces:       bigs(dec.DefundNonces),
		Timeout:            (*big.Int)(dec.Timeout),
		Nonce:              dec.Nonce,
		MerkleRoot:         dec.MerkleRoot,
	}
	return nil
}

type transferStateJSON struct {
	ChannelAddress     common.Address   `json:"channelAddress"`
	TransferID         common.Hash      `json:"transferId"`
	TransferDefinition common.Address   `json:"transferDefinition"`
	Initiator          common.Address   `json:"initiator"`
	Responder          common.Address   `json:"responder"`
	AssetID            common.Address   `json:"assetId"`
	Balance            Balance          `json:"balance"`
	TransferTimeout    *math.Decimal256 `json:"transferTimeout"`
	InitialStateHash   common.Hash      `json:"initialStateHash"`
}

func (s *CoreTransferState) toJSON() transferStateJSON {
	return transferStateJSON{
		ChannelAddress:     s.ChannelAddress,
		TransferID:         s.TransferID,
		TransferDefinition: s.TransferDefinition,
		Initiator:          s.Initiator,
		Responder:          s.Responder,
		AssetID:            s.AssetID,
		Balance:            s.Balance,
		TransferTimeout:    (*math.Decimal256)(s.TransferTimeout),
		InitialStateHash:   s.InitialStateHash,
	}
}

func (dec *transferStateJSON) core() CoreTransferState {
	return CoreTransferState{
		ChannelAddress:     dec.ChannelAddress,
		TransferID:         dec.TransferID,
		TransferDefinition: dec.TransferDefinition,
		Initiator:          dec.Initiator,
		Responder:          dec.Responder,
		AssetID:            dec.AssetID,
		Balance:            dec.Balance,
		TransferTimeout:    (*big.Int)(dec.TransferTimeout),
		InitialStateHash:   dec.InitialStateHash,
	}
}

func (s CoreTransferState) MarshalJSON() ([]byte, error) {
	enc := s.toJSON()
	return json.Marshal(&enc)
}

func (s *CoreTransferState) UnmarshalJSON(input []byte) error {
	var dec transferStateJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	*s = dec.core()
	return nil
}

// fullTransferJSON keeps the core fields flat next to the definition specific
// ones.
type fullTransferJSON struct {
	transferStateJSON
	TransferState     map[string]any `json:"transferState"`
	TransferResolver  map[string]any `json:"transferResolver,omitempty"`
	TransferEncodings [2]string      `json:"transferEncodings"`
}

func (s FullTransferState) MarshalJSON() ([]byte, error) {
	return json.Marshal(&fullTransferJSON{
		transferStateJSON: s.CoreTransferState.toJSON(),
		TransferState:     s.TransferState,
		TransferResolver:  s.TransferResolver,
		TransferEncodings: s.TransferEncodings,
	})
}

func (s *FullTransferState) UnmarshalJSON(input []byte) error {
	var dec fullTransferJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	s.CoreTransferState = dec.transferStateJSON.core()
	s.TransferState = dec.TransferState
	s.TransferResolver = dec.TransferResolver
	s.TransferEncodings = dec.TransferEncodings
	return nil
}

func (d ChannelDispute) MarshalJSON() ([]byte, error) {
	type ChannelDispute struct {
		ChannelStateHash common.Hash      `json:"channelStateHash"`
		Nonce            *math.Decimal256 `json:"nonce"`
		MerkleRoot       common.Hash      `json:"merkleRoot"`
		ConsensusExpiry  *math.Decimal256 `json:"consensusExpiry"`
		DefundExpiry     *math.Decimal256 `json:"defundExpiry"`
	}
	return json.Marshal(&ChannelDispute{
		ChannelStateHash: d.ChannelStateHash,
		Nonce:            (*math.Decimal256)(d.Nonce),
		MerkleRoot:       d.MerkleRoot,
		ConsensusExpiry:  (*math.Decimal256)(d.ConsensusExpiry),
		DefundExpiry:     (*math.Decimal256)(d.DefundExpiry),
	})
}

func (d *ChannelDispute) UnmarshalJSON(input []byte) error {
	type ChannelDispute struct {
		ChannelStateHash common.Hash      `json:"channelStateHash"`
		Nonce            *math.Decimal256 `json:"nonce"`
		MerkleRoot       common.Hash      `json:"merkleRoot"`
		ConsensusExpiry  *math.Decimal256 `json:"consensusExpiry"`
		DefundExpiry     *math.Decimal256 `json:"defundExpiry"`
	}
	var dec ChannelDispute
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	d.ChannelStateHash = dec.ChannelStateHash
	d.Nonce = (*big.Int)(dec.Nonce)
	d.MerkleRoot = dec.MerkleRoot
	d.ConsensusExpiry = (*big.Int)(dec.ConsensusExpiry)
	d.DefundExpiry = (*big.Int)(dec.DefundExpiry)
	return nil
}

func (d TransferDispute) MarshalJSON() ([]byte, error) {
	type TransferDispute struct {
		TransferID            common.Hash      `json:"transferId"`
		TransferStateHash     common.Hash      `json:"transferStateHash"`
		TransferDisputeExpiry *math.Decimal256 `json:"transferDisputeExpiry"`
		IsDefunded            bool             `json:"isDefunded"`
	}
	return json.Marshal(&TransferDispute{
		TransferID:            d.TransferID,
		TransferStateHash:     d.TransferStateHash,
		TransferDisputeExpiry: (*math.Decimal256)(d.TransferDisputeExpiry),
		IsDefunded:            d.IsDefunded,
	})
}

func (d *TransferDispute) UnmarshalJSON(input []byte) error {
	type TransferDispute struct {
		TransferID            common.Hash      `json:"transferId"`
		TransferStateHash     common.Hash      `json:"transferStateHash"`
		TransferDisputeExpiry *math.Decimal256 `json:"transferDisputeExpiry"`
		IsDefunded            bool             `json:"isDefunded"`
	}
	var dec TransferDispute
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	d.TransferID = dec.TransferID
	d.TransferStateHash = dec.TransferStateHash
	d.TransferDisputeExpiry = (*big.Int)(dec.TransferDisputeExpiry)
	d.IsDefunded = dec.IsDefunded
	return nil
}

type withdrawCommitmentJSON struct {
	ChannelAddress common.Address   `json:"channelAddress"`
	AssetID        common.Address   `json:"assetId"`
	Recipient      common.Address   `json:"recipient"`
	Amount         *math.Decimal256 `json:"amount"`
	Nonce          *math.Decimal256 `json:"nonce"`
	CallTo         common.Address   `json:"callTo"`
	CallData       hexutil.Bytes    `json:"callData"`
}

func (c WithdrawCommitment) MarshalJSON() ([]byte, error) {
	return json.Marshal(&withdrawCommitmentJSON{
		ChannelAddress: c.ChannelAddress,
		AssetID:        c.AssetID,
		Recipient:      c.Recipient,
		Amount:         (*math.Decimal256)(c.Amount),
		Nonce:          (*math.Decimal256)(c.Nonce),
		CallTo:         c.CallTo,
		CallData:       c.CallData,
	})
}

func (c *WithdrawCommitment) UnmarshalJSON(input []byte) error {
	var dec withdrawCommitmentJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	*c = WithdrawCommitment{
		ChannelAddress: dec.ChannelAddress,
		AssetID:        dec.AssetID,
		Recipient:      dec.Recipient,
		Amount:         (*big.Int)(dec.Amount),
		Nonce:          (*big.Int)(dec.Nonce),
		CallTo:         dec.CallTo,
		CallData:       dec.CallData,
	}
	return nil
}
