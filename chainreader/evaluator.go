// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package chainreader

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm/runtime"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/offchainlabs/vector-reader/abicodec"
	"github.com/offchainlabs/vector-reader/chaintypes"
	"github.com/offchainlabs/vector-reader/util/retry"
)

var (
	localSucceededCounter = metrics.NewRegisteredCounter("chainreader/local/succeeded", nil)
	localFailedCounter    = metrics.NewRegisteredCounter("chainreader/local/failed", nil)
)

var errNoLocalBytecode = errors.New("no bytecode for local evaluation")

// executeLocal runs input against bytecode in an in-memory EVM. Any failure
// is an ExecutionFailure the caller answers by going to the chain.
func (r *Reader) executeLocal(chainID uint64, bytecode, input []byte) (ret []byte, err error) {
	config := r.config()
	if !config.LocalEvaluation || len(bytecode) == 0 {
		return nil, newChainError(ErrExecutionFailure, chainID, errNoLocalBytecode)
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("evm panic: %v", recovered)
		}
		if err != nil {
			localFailedCounter.Inc(1)
			log.Debug("Local evaluation failed", "chainId", chainID, "err", err)
			err = newChainError(ErrExecutionFailure, chainID, err)
		}
	}()
	ret, _, err = runtime.Execute(bytecode, input, &runtime.Config{GasLimit: config.LocalGasLimit})
	if err == nil {
		localSucceededCounter.Inc(1)
	}
	return ret, err
}

// evaluate runs a transfer definition call locally when possible and on the
// chain otherwise. Both paths share the same decoding.
func evaluate[T any](ctx context.Context, r *Reader, chainID uint64, method string, definition common.Address, bytecode []byte, block chaintypes.BlockRef, input []byte) (T, error) {
	if output, err := r.executeLocal(chainID, bytecode, input); err == nil {
		decoded, err := unpackOutput[T](TransferDefinitionABI, method, output)
		if err == nil {
			return decoded, nil
		}
		localFailedCounter.Inc(1)
		log.Debug("Local evaluation output undecodable", "chainId", chainID, "method", method, "transferDefinition", definition, "err", err)
	}
	log.Debug("Calling transfer definition onchain", "chainId", chainID, "method", method, "transferDefinition", definition, "block", block)
	return call(ctx, r, chainID, method, func(ctx context.Context, client chaintypes.ChainClient) (T, error) {
		msg := ethereum.CallMsg{To: &definition, Data: input}
		output, err := client.CallContract(ctx, msg, block.Number())
		if err != nil {
			return *new(T), err
		}
		if len(output) == 0 {
			return *new(T), fmt.Errorf("%s returned no data from %v", method, definition)
		}
		decoded, err := unpackOutput[T](TransferDefinitionABI, method, output)
		if err != nil {
			return *new(T), retry.Permanent(newChainError(ErrEncodingFailure, chainID, err, "transferDefinition", definition, "method", method))
		}
		return decoded, nil
	})
}

// Create asks the transfer definition whether state is a valid initial state
// for balance. The state encoding comes from the chain's transfer registry.
func (r *Reader) Create(
	ctx context.Context,
	chainID uint64,
	state abicodec.Values,
	balance chaintypes.Balance,
	definition common.Address,
	registry common.Address,
	bytecode []byte,
	block chaintypes.BlockRef,
) (bool, error) {
	block, err := r.prepare(ctx, chainID, block)
	if err != nil {
		return false, err
	}
	registered, err := r.GetRegisteredTransferByDefinition(ctx, chainID, definition, registry, nil, block)
	if err != nil {
		return false, err
	}
	encodedState, err := abicodec.EncodeTransferState(registered.StateEncoding, state)
	if err != nil {
		return false, newChainError(ErrEncodingFailure, chainID, err, "transferDefinition", definition, "stateEncoding", registered.StateEncoding)
	}
	encodedBalance, err := abicodec.EncodeBalance(balance)
	if err != nil {
		return false, newChainError(ErrEncodingFailure, chainID, err, "transferDefinition", definition)
	}
	input, err := TransferDefinitionABI.Pack("create", encodedBalance, encodedState)
	if err != nil {
		return false, newChainError(ErrEncodingFailure, chainID, err, "transferDefinition", definition)
	}
	return evaluate[bool](ctx, r, chainID, "create", definition, bytecode, block, input)
}

// Resolve computes the final balance of transfer from its state and
// resolver, using the encodings carried by the transfer.
func (r *Reader) Resolve(ctx context.Context, chainID uint64, transfer *chaintypes.FullTransferState, bytecode []byte, block chaintypes.BlockRef) (chaintypes.Balance, error) {
	block, err := r.prepare(ctx, chainID, block)
	if err != nil {
		return chaintypes.Balance{}, err
	}
	definition := transfer.TransferDefinition
	details := []any{"transferDefinition", definition, "transferId", transfer.TransferID}
	encodedState, err := abicodec.EncodeTransferState(transfer.TransferEncodings[0], transfer.TransferState)
	if err != nil {
		return chaintypes.Balance{}, newChainError(ErrEncodingFailure, chainID, err, details...)
	}
	encodedResolver, err := abicodec.EncodeTransferResolver(transfer.TransferEncodings[1], transfer.TransferResolver)
	if err != nil {
		return chaintypes.Balance{}, newChainError(ErrEncodingFailure, chainID, err, details...)
	}
	encodedBalance, err := abicodec.EncodeBalance(transfer.Balance)
	if err != nil {
		return chaintypes.Balance{}, newChainError(ErrEncodingFailure, chainID, err, details...)
	}
	input, err := TransferDefinitionABI.Pack("resolve", encodedBalance, encodedState, encodedResolver)
	if err != nil {
		return chaintypes.Balance{}, newChainError(ErrEncodingFailure, chainID, err, details...)
	}
	resolved, err := evaluate[chaintypes.ABIBalance](ctx, r, chainID, "resolve", definition, bytecode, block, input)
	if err != nil {
		return chaintypes.Balance{}, err
	}
	return chaintypes.BalanceFromABI(resolved), nil
}
