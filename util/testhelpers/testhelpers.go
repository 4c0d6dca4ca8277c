// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package testhelpers

import (
	"context"
	"log/slog"
	"math/big"
	"math/rand"
	"os"
	"regexp"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/offchainlabs/vector-reader/chaintypes"
)

func RandomizeSlice(slice []byte) []byte {
	_, err := rand.Read(slice)
	if err != nil {
		panic(err)
	}
	return slice
}

func RandomSlice(size uint64) []byte {
	return RandomizeSlice(make([]byte, size))
}

func RandomHash() common.Hash {
	var hash common.Hash
	RandomizeSlice(hash[:])
	return hash
}

func RandomAddress() common.Address {
	var address common.Address
	RandomizeSlice(address[:])
	return address
}

func RandomCallValue(limit int64) *big.Int {
	return big.NewInt(rand.Int63n(limit))
}

// Computes a psuedo-random uint64 on the interval [min, max]
func RandomUint64(min, max uint64) uint64 {
	return uint64(rand.Uint64()%(max-min+1) + min)
}

func RandomBool() bool {
	return rand.Int31n(2) == 0
}

// RandomTransfer returns a transfer in the given channel with random parties,
// balance and id.
func RandomTransfer(channel common.Address) *chaintypes.CoreTransferState {
	initiator, responder := RandomAddress(), RandomAddress()
	return &chaintypes.CoreTransferState{
		ChannelAddress:     channel,
		TransferID:         RandomHash(),
		TransferDefinition: RandomAddress(),
		Initiator:          initiator,
		Responder:          responder,
		AssetID:            RandomAddress(),
		Balance:            chaintypes.NewBalance(RandomCallValue(1e18), RandomCallValue(1e18), initiator, responder),
		TransferTimeout:    big.NewInt(int64(RandomUint64(1, 100000))),
		InitialStateHash:   RandomHash(),
	}
}

func RandomTransfers(channel common.Address, count int) []*chaintypes.CoreTransferState {
	transfers := make([]*chaintypes.CoreTransferState, count)
	for i := range transfers {
		transfers[i] = RandomTransfer(channel)
	}
	return transfers
}

// LogHandler records every message it forwards so tests can assert on them.
type LogHandler struct {
	mutex   sync.Mutex
	t       *testing.T
	records []slog.Record
	inner   slog.Handler
}

func (h *LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *LogHandler) Handle(ctx context.Context, record slog.Record) error {
	h.mutex.Lock()
	h.records = append(h.records, record.Clone())
	h.mutex.Unlock()
	if !h.inner.Enabled(ctx, record.Level) {
		return nil
	}
	return h.inner.Handle(ctx, record)
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &attrHandler{LogHandler: h, inner: h.inner.WithAttrs(attrs)}
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	return &attrHandler{LogHandler: h, inner: h.inner.WithGroup(name)}
}

type attrHandler struct {
	*LogHandler
	inner slog.Handler
}

func (h *attrHandler) Handle(ctx context.Context, record slog.Record) error {
	h.mutex.Lock()
	h.records = append(h.records, record.Clone())
	h.mutex.Unlock()
	if !h.inner.Enabled(ctx, record.Level) {
		return nil
	}
	return h.inner.Handle(ctx, record)
}

func (h *LogHandler) WasLogged(pattern string) bool {
	h.t.Helper()
	re, err := regexp.Compile(pattern)
	if err != nil {
		h.t.Fatal(err)
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for _, record := range h.records {
		if re.MatchString(record.Message) {
			return true
		}
	}
	return false
}

// InitTestLog installs a recording handler as the default logger. Records of
// every level are kept; only those at or above level reach stderr.
func InitTestLog(t *testing.T, level slog.Level) *LogHandler {
	handler := &LogHandler{
		t:     t,
		inner: log.NewTerminalHandlerWithLevel(os.Stderr, level, false),
	}
	previous := log.Root()
	log.SetDefault(log.NewLogger(handler))
	t.Cleanup(func() { log.SetDefault(previous) })
	return handler
}
