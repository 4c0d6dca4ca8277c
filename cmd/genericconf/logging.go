// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package genericconf

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RotatingWriter appends records to a size rotated file from one goroutine.
// Write never blocks: once BufSize records are queued, further records are
// dropped and counted.
type RotatingWriter struct {
	file    *lumberjack.Logger
	queue   chan []byte
	done    chan struct{}
	dropped atomic.Uint64

	mutex  sync.RWMutex // protects closed against sends on queue
	closed bool
}

func NewRotatingWriter(config *FileLoggingConfig, filename string) *RotatingWriter {
	w := &RotatingWriter{
		file: &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			LocalTime:  config.LocalTime,
			Compress:   config.Compress,
		},
		queue: make(chan []byte, max(config.BufSize, 1)),
		done:  make(chan struct{}),
	}
	go w.drain()
	return w
}

func (w *RotatingWriter) drain() {
	defer close(w.done)
	for record := range w.queue {
		_, _ = w.file.Write(record)
	}
}

// Write queues a copy of p; handlers reuse their buffers.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	if w.closed {
		return 0, os.ErrClosed
	}
	select {
	case w.queue <- append([]byte(nil), p...):
	default:
		w.dropped.Add(1)
	}
	return len(p), nil
}

// Dropped is the number of records lost to a full queue.
func (w *RotatingWriter) Dropped() uint64 {
	return w.dropped.Load()
}

// Close flushes queued records and closes the file. It is idempotent.
func (w *RotatingWriter) Close() error {
	w.mutex.Lock()
	if w.closed {
		w.mutex.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mutex.Unlock()
	<-w.done
	if dropped := w.dropped.Load(); dropped > 0 {
		log.Warn("Records dropped by full file writer", "file", w.file.Filename, "dropped", dropped)
	}
	return w.file.Close()
}

var (
	logFileMutex sync.Mutex
	logFile      *RotatingWriter
)

// CloseLogFile flushes and detaches the file opened by InitLog, if any.
func CloseLogFile() error {
	logFileMutex.Lock()
	defer logFileMutex.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	if err != nil {
		return fmt.Errorf("failed to close file writer: %w", err)
	}
	return nil
}

// InitLog installs the process wide logger, writing to stderr and, when
// enabled, a rotated log file. A file opened by an earlier call is closed.
func InitLog(logType string, logLevel string, fileLoggingConfig *FileLoggingConfig, pathResolver func(string) string) error {
	handlerOutput := func(output io.Writer) (*log.GlogHandler, error) {
		handler, err := HandlerFromLogType(logType, output)
		if err != nil {
			return nil, fmt.Errorf("error parsing log type when creating handler: %w", err)
		}
		slogLevel, err := ToSlogLevel(logLevel)
		if err != nil {
			return nil, fmt.Errorf("error parsing log level: %w", err)
		}
		glogger := log.NewGlogHandler(handler)
		glogger.Verbosity(slogLevel)
		return glogger, nil
	}
	// validate before touching the current file
	if _, err := handlerOutput(io.Discard); err != nil {
		return err
	}
	if err := CloseLogFile(); err != nil {
		return err
	}
	var output io.Writer = os.Stderr
	if fileLoggingConfig.Enable {
		file := NewRotatingWriter(fileLoggingConfig, pathResolver(fileLoggingConfig.File))
		logFileMutex.Lock()
		logFile = file
		logFileMutex.Unlock()
		output = io.MultiWriter(os.Stderr, file)
	}
	glogger, err := handlerOutput(output)
	if err != nil {
		return err
	}
	log.SetDefault(log.NewLogger(glogger))
	return nil
}
