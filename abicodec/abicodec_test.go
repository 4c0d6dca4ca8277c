// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package abicodec

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/offchainlabs/vector-reader/chaintypes"
)

const (
	hashlockStateEncoding    = "tuple(bytes32 lockHash, uint256 expiry)"
	hashlockResolverEncoding = "tuple(bytes32 preImage)"
	withdrawStateEncoding    = `tuple(
		bytes initiatorSignature,
		address initiator,
		address responder,
		bytes32 data,
		uint256 nonce,
		uint256 fee,
		address callTo,
		bytes callData
	)`
)

func TestTidy(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"tuple(bytes32 lockHash, uint256 expiry)", "tuple(bytes32 lockHash, uint256 expiry)"},
		{"tuple( bytes32   lockHash ,uint256 expiry )", "tuple(bytes32 lockHash, uint256 expiry)"},
		{"tuple(\n  bytes32 lockHash,\n  uint256 expiry\n)", "tuple(bytes32 lockHash, uint256 expiry)"},
		{"  uint256 [2]  amount ", "uint256[2] amount"},
		{"tuple(tuple(uint256 a, address b) [] items)", "tuple(tuple(uint256 a, address b)[] items)"},
	} {
		require.Equal(t, tc.want, Tidy(tc.in), tc.in)
	}
}

func TestParseType(t *testing.T) {
	typ, err := ParseType(withdrawStateEncoding)
	require.NoError(t, err)
	require.Equal(t, abi.TupleTy, typ.T)
	require.Equal(t, []string{
		"initiatorSignature", "initiator", "responder", "data", "nonce", "fee", "callTo", "callData",
	}, typ.TupleRawNames)

	nested, err := ParseType("tuple(tuple(uint256 a, address b)[] items, uint8[3] small, string label)")
	require.NoError(t, err)
	require.Equal(t, abi.SliceTy, nested.TupleElems[0].T)
	require.Equal(t, abi.TupleTy, nested.TupleElems[0].Elem.T)
	require.Equal(t, abi.ArrayTy, nested.TupleElems[1].T)

	again, err := ParseType("tuple(bytes32 lockHash,uint256 expiry)")
	require.NoError(t, err)
	first, err := ParseType(hashlockStateEncoding)
	require.NoError(t, err)
	require.Equal(t, first.String(), again.String())

	unnamed, err := ParseType("tuple(uint256, address)")
	require.NoError(t, err)
	require.Equal(t, []string{"arg0", "arg1"}, unnamed.TupleRawNames)
}

func TestParseTypeRejectsBadSchemas(t *testing.T) {
	for _, schema := range []string{
		"",
		"tuple(uint256 a",
		"tuple()",
		"tuple(uint256 a, address a)",
		"tuple(foo a)",
		"tuple(uint256 a b c)",
	} {
		_, err := ParseType(schema)
		require.ErrorIs(t, err, ErrInvalidSchema, schema)
	}
}

func TestTransferStateRoundTrip(t *testing.T) {
	state := Values{
		"lockHash": "0x" + common.Bytes2Hex(common.HexToHash("0xabcdef").Bytes()),
		"expiry":   "1234567890123456789012345",
	}
	encoded, err := EncodeTransferState(hashlockStateEncoding, state)
	require.NoError(t, err)
	require.Len(t, encoded, 64)

	decoded, err := DecodeTransferState(hashlockStateEncoding, encoded)
	require.NoError(t, err)
	if diff := cmp.Diff(state, decoded); diff != "" {
		t.Fatalf("decoded state mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeAcceptsLooseInputs(t *testing.T) {
	var fromJSON Values
	require.NoError(t, json.Unmarshal([]byte(`{"lockHash":"0x`+common.Bytes2Hex(make([]byte, 32))+`","expiry":42}`), &fromJSON))
	fromJSONEncoded, err := EncodeTransferState(hashlockStateEncoding, fromJSON)
	require.NoError(t, err)

	native, err := EncodeTransferState(hashlockStateEncoding, Values{
		"lockHash": common.Hash{},
		"expiry":   big.NewInt(42),
	})
	require.NoError(t, err)
	require.Equal(t, native, fromJSONEncoded)

	hex, err := EncodeTransferState(hashlockStateEncoding, Values{
		"lockHash": common.Hash{},
		"expiry":   "0x2a",
	})
	require.NoError(t, err)
	require.Equal(t, native, hex)
}

func TestEncodeRejectsBadValues(t *testing.T) {
	for name, state := range map[string]Values{
		"missing field":   {"lockHash": common.Hash{}},
		"short bytes32":   {"lockHash": "0x1234", "expiry": "1"},
		"negative uint":   {"lockHash": common.Hash{}, "expiry": "-1"},
		"overflowing":     {"lockHash": common.Hash{}, "expiry": new(big.Int).Lsh(big.NewInt(1), 256)},
		"fractional":      {"lockHash": common.Hash{}, "expiry": 1.5},
		"not an integer":  {"lockHash": common.Hash{}, "expiry": "twelve"},
		"wrong container": {"lockHash": []any{1}, "expiry": "1"},
	} {
		_, err := EncodeTransferState(hashlockStateEncoding, state)
		require.ErrorIs(t, err, ErrInvalidValue, name)
	}
}

func TestSmallIntegersAndNestedValues(t *testing.T) {
	encoding := "tuple(tuple(uint256 a, address b)[] items, uint8[3] small, int16 delta, bool ok, string label, bytes blob)"
	value := Values{
		"items": []any{
			Values{"a": "1", "b": common.HexToAddress("0x1111111111111111111111111111111111111111").Hex()},
			Values{"a": "2", "b": common.HexToAddress("0x2222222222222222222222222222222222222222").Hex()},
		},
		"small": []any{"1", "2", "255"},
		"delta": "-300",
		"ok":    true,
		"label": "hello",
		"blob":  "0xdeadbeef",
	}
	encoded, err := EncodeTransferState(encoding, value)
	require.NoError(t, err)
	decoded, err := DecodeTransferState(encoding, encoded)
	require.NoError(t, err)
	if diff := cmp.Diff(value, decoded); diff != "" {
		t.Fatalf("decoded value mismatch (-want +got):\n%s", diff)
	}

	value["small"] = []any{"1", "2", "256"}
	_, err = EncodeTransferState(encoding, value)
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestResolverAndBalance(t *testing.T) {
	preImage := common.HexToHash("0x01").Hex()
	encoded, err := EncodeTransferResolver(hashlockResolverEncoding, Values{"preImage": preImage})
	require.NoError(t, err)
	decoded, err := DecodeTransferResolver(hashlockResolverEncoding, encoded)
	require.NoError(t, err)
	require.Equal(t, Values{"preImage": preImage}, decoded)

	balance := chaintypes.NewBalance(big.NewInt(7), big.NewInt(0),
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"))
	packed, err := EncodeBalance(balance)
	require.NoError(t, err)
	require.Len(t, packed, 4*32)
	unpacked, err := DecodeBalance(packed)
	require.NoError(t, err)
	require.Equal(t, 0, balance.Amount[0].Cmp(unpacked.Amount[0]))
	require.Equal(t, balance.To, unpacked.To)

	balance.Amount[1] = big.NewInt(-5)
	_, err = EncodeBalance(balance)
	require.ErrorIs(t, err, ErrInvalidValue)
	require.ErrorIs(t, err, chaintypes.ErrNegativeAmount)
}
