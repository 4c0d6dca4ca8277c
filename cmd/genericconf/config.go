// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package genericconf

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"
)

type ConfConfig struct {
	Dump      bool     `koanf:"dump"`
	EnvPrefix string   `koanf:"env-prefix"`
	File      []string `koanf:"file"`
	String    string   `koanf:"string"`
}

func ConfConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Bool(prefix+".dump", ConfConfigDefault.Dump, "print out currently active configuration file")
	f.String(prefix+".env-prefix", ConfConfigDefault.EnvPrefix, "environment variables with given prefix will be loaded as configuration values")
	f.StringSlice(prefix+".file", ConfConfigDefault.File, "name of configuration file")
	f.String(prefix+".string", ConfConfigDefault.String, "configuration as JSON string")
}

var ConfConfigDefault = ConfConfig{
	Dump:      false,
	EnvPrefix: "",
	File:      nil,
	String:    "",
}

// HandlerFromLogType builds the output handler for log-type. Plaintext is
// colored only when stderr is a terminal.
func HandlerFromLogType(logType string, output io.Writer) (slog.Handler, error) {
	switch logType {
	case "plaintext":
		useColor := term.IsTerminal(int(os.Stderr.Fd())) && output == io.Writer(os.Stderr)
		return log.NewTerminalHandler(output, useColor), nil
	case "json":
		return log.JSONHandler(output), nil
	}
	return nil, errors.New("invalid log type")
}

// ToSlogLevel accepts a level name or a geth verbosity number
// (1: ERROR, 2: WARN, 3: INFO, 4: DEBUG, 5: TRACE).
func ToSlogLevel(str string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "crit", "0":
		return log.LevelCrit, nil
	case "error", "1":
		return log.LevelError, nil
	case "warn", "2":
		return log.LevelWarn, nil
	case "info", "3":
		return log.LevelInfo, nil
	case "debug", "4":
		return log.LevelDebug, nil
	case "trace", "5":
		return log.LevelTrace, nil
	}
	return slog.LevelInfo, errors.New("invalid log level")
}

type FileLoggingConfig struct {
	Enable     bool   `koanf:"enable"`
	File       string `koanf:"file"`
	MaxSize    int    `koanf:"max-size"`
	MaxAge     int    `koanf:"max-age"`
	MaxBackups int    `koanf:"max-backups"`
	LocalTime  bool   `koanf:"local-time"`
	Compress   bool   `koanf:"compress"`
	BufSize    int    `koanf:"buf-size"`
}

var DefaultFileLoggingConfig = FileLoggingConfig{
	Enable:     false,
	File:       "chainwatch.log",
	MaxSize:    5,     // 5Mb
	MaxAge:     0,     // don't remove old files based on age
	MaxBackups: 20,    // keep 20 files
	LocalTime:  false, // use UTC time
	Compress:   true,
	BufSize:    512,
}

// DefaultDisputeLogConfig journals watched dispute events as JSON lines.
var DefaultDisputeLogConfig = FileLoggingConfig{
	Enable:     false,
	File:       "disputes.jsonl",
	MaxSize:    20,
	MaxAge:     0,
	MaxBackups: 0, // events are kept
	LocalTime:  false,
	Compress:   true,
	BufSize:    1024,
}

func FileLoggingConfigAddOptions(prefix string, f *flag.FlagSet, defaults FileLoggingConfig) {
	f.Bool(prefix+".enable", defaults.Enable, "enable logging to file")
	f.String(prefix+".file", defaults.File, "path to log file")
	f.Int(prefix+".max-size", defaults.MaxSize, "log file size in Mb that will trigger log file rotation (0 = trigger disabled)")
	f.Int(prefix+".max-age", defaults.MaxAge, "maximum number of days to retain old log files based on the timestamp encoded in their filename (0 = no limit)")
	f.Int(prefix+".max-backups", defaults.MaxBackups, "maximum number of old log files to retain (0 = no limit)")
	f.Bool(prefix+".local-time", defaults.LocalTime, "if true: local time will be used in old log filename timestamps")
	f.Bool(prefix+".compress", defaults.Compress, "enable compression of old log files")
	f.Int(prefix+".buf-size", defaults.BufSize, "size of intermediate log records buffer")
}

type MetricsServerConfig struct {
	Addr           string        `koanf:"addr"`
	Port           int           `koanf:"port"`
	UpdateInterval time.Duration `koanf:"update-interval"`
}

var MetricsServerConfigDefault = MetricsServerConfig{
	Addr:           "127.0.0.1",
	Port:           6070,
	UpdateInterval: 3 * time.Second,
}

func MetricsServerAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".addr", MetricsServerConfigDefault.Addr, "metrics server address")
	f.Int(prefix+".port", MetricsServerConfigDefault.Port, "metrics server port")
	f.Duration(prefix+".update-interval", MetricsServerConfigDefault.UpdateInterval, "metrics server update interval")
}

// DefaultPathResolver resolves relative paths against workdir, or the
// current directory when workdir is empty.
func DefaultPathResolver(workdir string) func(string) string {
	if workdir == "" {
		var err error
		workdir, err = os.Getwd()
		if err != nil {
			log.Warn("Failed to get workdir", "err", err)
		}
	}
	return func(path string) string {
		if filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(workdir, path)
	}
}
