// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package chainreader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/offchainlabs/vector-reader/chaintypes"
	"github.com/offchainlabs/vector-reader/util/retry"
)

const balanceTuple = `{"name":"%s","type":"tuple","components":[{"name":"amount","type":"uint256[2]"},{"name":"to","type":"address[2]"}]}`

var (
	coreChannelStateTuple = `{"name":"state","type":"tuple","components":[` +
		`{"name":"channelAddress","type":"address"},` +
		`{"name":"alice","type":"address"},` +
		`{"name":"bob","type":"address"},` +
		`{"name":"assetIds","type":"address[]"},` +
		`{"name":"balances","type":"tuple[]","components":[{"name":"amount","type":"uint256[2]"},{"name":"to","type":"address[2]"}]},` +
		`{"name":"processedDepositsA","type":"uint256[]"},` +
		`{"name":"processedDepositsB","type":"uint256[]"},` +
		`{"name":"defundNonces","type":"uint256[]"},` +
		`{"name":"timeout","type":"uint256"},` +
		`{"name":"nonce","type":"uint256"},` +
		`{"name":"merkleRoot","type":"bytes32"}]}`
	coreTransferStateTuple = `{"name":"state","type":"tuple","components":[` +
		`{"name":"channelAddress","type":"address"},` +
		`{"name":"transferId","type":"bytes32"},` +
		`{"name":"transferDefinition","type":"address"},` +
		`{"name":"initiator","type":"address"},` +
		`{"name":"responder","type":"address"},` +
		`{"name":"assetId","type":"address"},` +
		fmt.Sprintf(balanceTuple, "balance") + `,` +
		`{"name":"transferTimeout","type":"uint256"},` +
		`{"name":"initialStateHash","type":"bytes32"}]}`
	channelDisputeTuple = `{"name":"dispute","type":"tuple","components":[` +
		`{"name":"channelStateHash","type":"bytes32"},` +
		`{"name":"nonce","type":"uint256"},` +
		`{"name":"merkleRoot","type":"bytes32"},` +
		`{"name":"consensusExpiry","type":"uint256"},` +
		`{"name":"defundExpiry","type":"uint256"}]}`
	transferDisputeTuple = `{"name":"dispute","type":"tuple","components":[` +
		`{"name":"transferStateHash","type":"bytes32"},` +
		`{"name":"transferDisputeExpiry","type":"uint256"},` +
		`{"name":"isDefunded","type":"bool"}]}`
	withdrawDataTuple = `{"name":"wd","type":"tuple","components":[` +
		`{"name":"channelAddress","type":"address"},` +
		`{"name":"assetId","type":"address"},` +
		`{"name":"recipient","type":"address"},` +
		`{"name":"amount","type":"uint256"},` +
		`{"name":"nonce","type":"uint256"},` +
		`{"name":"callTo","type":"address"},` +
		`{"name":"callData","type":"bytes"}]}`
)

var ChannelFactoryABIJSON = `[
	{"type":"function","name":"getProxyCreationCode","stateMutability":"pure","inputs":[],"outputs":[{"name":"","type":"bytes"}]},
	{"type":"function","name":"getMastercopy","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getChannelAddress","stateMutability":"view","inputs":[{"name":"alice","type":"address"},{"name":"bob","type":"address"}],"outputs":[{"name":"","type":"address"}]}
]`

var ChannelABIJSON = `[
	{"type":"function","name":"getTotalDepositsAlice","stateMutability":"view","inputs":[{"name":"assetId","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getTotalDepositsBob","stateMutability":"view","inputs":[{"name":"assetId","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getChannelDispute","stateMutability":"view","inputs":[],"outputs":[` + channelDisputeTuple + `]},
	{"type":"function","name":"getTransferDispute","stateMutability":"view","inputs":[{"name":"transferId","type":"bytes32"}],"outputs":[` + transferDisputeTuple + `]},
	{"type":"function","name":"getWithdrawalTransactionRecord","stateMutability":"view","inputs":[` + withdrawDataTuple + `],"outputs":[{"name":"","type":"bool"}]},
	{"type":"event","name":"ChannelDisputed","anonymous":false,"inputs":[{"name":"disputer","type":"address","indexed":false},` + coreChannelStateTuple + `,` + channelDisputeTuple + `]},
	{"type":"event","name":"ChannelDefunded","anonymous":false,"inputs":[{"name":"defunder","type":"address","indexed":false},` + coreChannelStateTuple + `,` + channelDisputeTuple + `,{"name":"assetIds","type":"address[]","indexed":false}]},
	{"type":"event","name":"TransferDisputed","anonymous":false,"inputs":[{"name":"disputer","type":"address","indexed":false},` + coreTransferStateTuple + `,` + transferDisputeTuple + `]},
	{"type":"event","name":"TransferDefunded","anonymous":false,"inputs":[{"name":"defunder","type":"address","indexed":false},` + coreTransferStateTuple + `,` + transferDisputeTuple + `,{"name":"encodedInitialState","type":"bytes","indexed":false},{"name":"encodedResolver","type":"bytes","indexed":false},` + fmt.Sprintf(balanceTuple, "balance") + `]}
]`

var TransferRegistryABIJSON = `[
	{"type":"function","name":"getTransferDefinitions","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"tuple[]","components":[` +
	`{"name":"name","type":"string"},{"name":"definition","type":"address"},{"name":"stateEncoding","type":"string"},{"name":"resolverEncoding","type":"string"},{"name":"encodedCancel","type":"bytes"}]}]}
]`

var TransferDefinitionABIJSON = `[
	{"type":"function","name":"create","stateMutability":"view","inputs":[{"name":"encodedBalance","type":"bytes"},{"name":"encodedState","type":"bytes"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"resolve","stateMutability":"view","inputs":[{"name":"encodedBalance","type":"bytes"},{"name":"encodedState","type":"bytes"},{"name":"encodedResolver","type":"bytes"}],"outputs":[` + fmt.Sprintf(balanceTuple, "") + `]}
]`

var ERC20ABIJSON = `[
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

var (
	ChannelFactoryABI     = mustParseABI(ChannelFactoryABIJSON)
	ChannelABI            = mustParseABI(ChannelABIJSON)
	TransferRegistryABI   = mustParseABI(TransferRegistryABIJSON)
	TransferDefinitionABI = mustParseABI(TransferDefinitionABIJSON)
	ERC20ABI              = mustParseABI(ERC20ABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// errABIMismatch marks call data or output that does not fit the method's
// ABI. Repeating the call cannot fix it.
var errABIMismatch = errors.New("abi mismatch")

// callContract performs a view call at block and converts the single return
// value into T. Output that does not decode is a permanent failure.
func callContract[T any](
	ctx context.Context,
	caller bind.ContractCaller,
	contractABI abi.ABI,
	address common.Address,
	block chaintypes.BlockRef,
	method string,
	params ...interface{},
) (T, error) {
	var zero T
	input, err := contractABI.Pack(method, params...)
	if err != nil {
		return zero, retry.Permanent(fmt.Errorf("%w: packing %s: %w", errABIMismatch, method, err))
	}
	output, err := caller.CallContract(ctx, ethereum.CallMsg{To: &address, Data: input}, block.Number())
	if err != nil {
		return zero, err
	}
	if len(output) == 0 {
		code, err := caller.CodeAt(ctx, address, block.Number())
		if err != nil {
			return zero, err
		}
		if len(code) == 0 {
			return zero, bind.ErrNoCode
		}
	}
	decoded, err := unpackOutput[T](contractABI, method, output)
	if err != nil {
		return zero, retry.Permanent(fmt.Errorf("%w: %s output: %w", errABIMismatch, method, err))
	}
	return decoded, nil
}

// convertOutput is abi.ConvertType without the panic.
func convertOutput[T any](value interface{}) (result T, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("unexpected %T in abi output: %v", value, recovered)
		}
	}()
	converted, ok := abi.ConvertType(value, new(T)).(*T)
	if !ok {
		return result, errors.New("abi output conversion failed")
	}
	return *converted, nil
}

// unpackOutput decodes the single return value of method from raw call output.
func unpackOutput[T any](contractABI abi.ABI, method string, data []byte) (T, error) {
	var zero T
	values, err := contractABI.Unpack(method, data)
	if err != nil {
		return zero, err
	}
	if len(values) != 1 {
		return zero, fmt.Errorf("%s returned %d values", method, len(values))
	}
	return convertOutput[T](values[0])
}
