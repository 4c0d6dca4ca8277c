// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package abicodec

import (
	"fmt"

	"github.com/offchainlabs/vector-reader/chaintypes"
)

func encodeWith(encoding string, v any) ([]byte, error) {
	t, err := ParseType(encoding)
	if err != nil {
		return nil, err
	}
	return Encode(t, v)
}

func decodeValues(encoding string, data []byte) (Values, error) {
	t, err := ParseType(encoding)
	if err != nil {
		return nil, err
	}
	decoded, err := Decode(t, data)
	if err != nil {
		return nil, err
	}
	values, ok := decoded.(Values)
	if !ok {
		return nil, fmt.Errorf("%w: encoding %q is not a tuple", ErrInvalidSchema, encoding)
	}
	return values, nil
}

// EncodeTransferState packs a transfer's definition-specific state with the
// state encoding registered for its definition.
func EncodeTransferState(stateEncoding string, state Values) ([]byte, error) {
	return encodeWith(stateEncoding, state)
}

func DecodeTransferState(stateEncoding string, data []byte) (Values, error) {
	return decodeValues(stateEncoding, data)
}

func EncodeTransferResolver(resolverEncoding string, resolver Values) ([]byte, error) {
	return encodeWith(resolverEncoding, resolver)
}

func DecodeTransferResolver(resolverEncoding string, data []byte) (Values, error) {
	return decodeValues(resolverEncoding, data)
}

func EncodeBalance(balance chaintypes.Balance) ([]byte, error) {
	encoded, err := chaintypes.EncodeBalance(balance)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	return encoded, nil
}

func DecodeBalance(data []byte) (chaintypes.Balance, error) {
	balance, err := chaintypes.DecodeBalance(data)
	if err != nil {
		return chaintypes.Balance{}, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	return balance, nil
}
