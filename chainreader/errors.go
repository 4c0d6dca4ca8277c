// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package chainreader

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/offchainlabs/vector-reader/util/retry"
)

var (
	ErrProviderNotFound      = errors.New("provider not found")
	ErrTransferNotRegistered = errors.New("transfer not registered")
	ErrEncodingFailure       = errors.New("encoding failure")
	ErrChainRead             = errors.New("could not execute rpc method")
	ErrExecutionFailure      = errors.New("local execution failed")
)

// ChainError is the failure returned by every reader operation. Reason is one
// of the sentinel errors above and selects the kind with errors.Is.
type ChainError struct {
	Reason   error
	ChainID  uint64
	Details  map[string]any
	Attempts map[int]string
	Cause    error
}

func (e *ChainError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Reason.Error())
	fmt.Fprintf(&sb, " (chainId=%d", e.ChainID)
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, e.Details[k])
	}
	sb.WriteString(")")
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *ChainError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Cause}
}

// newChainError builds a ChainError; details are alternating key/value pairs.
func newChainError(reason error, chainID uint64, cause error, details ...any) *ChainError {
	e := &ChainError{
		Reason:  reason,
		ChainID: chainID,
		Cause:   cause,
		Details: make(map[string]any, len(details)/2),
	}
	for i := 0; i+1 < len(details); i += 2 {
		e.Details[fmt.Sprint(details[i])] = details[i+1]
	}
	var exhausted *retry.ExhaustedError
	if errors.As(cause, &exhausted) {
		e.Attempts = exhausted.Attempts
	}
	return e
}

// asChainError passes ChainErrors through, reports ABI mismatches as encoding
// failures and wraps anything else as a chain-read failure.
func asChainError(chainID uint64, err error, details ...any) error {
	if err == nil {
		return nil
	}
	var chainErr *ChainError
	if errors.As(err, &chainErr) {
		return chainErr
	}
	if errors.Is(err, errABIMismatch) {
		return newChainError(ErrEncodingFailure, chainID, err, details...)
	}
	return newChainError(ErrChainRead, chainID, err, details...)
}
