// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// chainwatch connects to the configured chains, reports their state and logs
// the dispute events of the channels it is asked to watch.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	koanfjson "github.com/knadh/koanf/parsers/json"
	flag "github.com/spf13/pflag"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/exp"

	"github.com/offchainlabs/vector-reader/chainreader"
	"github.com/offchainlabs/vector-reader/chaintypes"
	"github.com/offchainlabs/vector-reader/cmd/genericconf"
	"github.com/offchainlabs/vector-reader/cmd/util/confighelpers"
	"github.com/offchainlabs/vector-reader/util/retry"
	"github.com/offchainlabs/vector-reader/util/rpcclient"
)

type ChainWatchConfig struct {
	Conf          genericconf.ConfConfig          `koanf:"conf"`
	LogLevel      string                          `koanf:"log-level"`
	LogType       string                          `koanf:"log-type"`
	FileLogging   genericconf.FileLoggingConfig   `koanf:"file-logging"`
	DisputeLog    genericconf.FileLoggingConfig   `koanf:"dispute-log"`
	Metrics       bool                            `koanf:"metrics"`
	MetricsServer genericconf.MetricsServerConfig `koanf:"metrics-server"`
	ChainReader   chainreader.Config              `koanf:"chain-reader"`
	Channels      []string                        `koanf:"channels"`
}

var DefaultChainWatchConfig = ChainWatchConfig{
	Conf:          genericconf.ConfConfigDefault,
	LogLevel:      "info",
	LogType:       "plaintext",
	FileLogging:   genericconf.DefaultFileLoggingConfig,
	DisputeLog:    genericconf.DefaultDisputeLogConfig,
	Metrics:       false,
	MetricsServer: genericconf.MetricsServerConfigDefault,
	ChainReader:   chainreader.DefaultConfig,
	Channels:      []string{},
}

type watchedChannel struct {
	chainID uint64
	address common.Address
}

func main() {
	if err := startup(); err != nil {
		log.Error("Error running chainwatch", "err", err)
		os.Exit(1)
	}
}

func printSampleUsage(progname string) {
	fmt.Printf("\n")
	fmt.Printf("Sample usage:                  %s --chain-reader.chain-providers 1=https://mainnet.example --channels 1=0x... \n", progname)
}

func parseChainWatch(args []string) (*ChainWatchConfig, error) {
	f := flag.NewFlagSet("chainwatch", flag.ContinueOnError)
	genericconf.ConfConfigAddOptions("conf", f)
	f.String("log-level", DefaultChainWatchConfig.LogLevel, "log level, as a name or 1: ERROR, 2: WARN, 3: INFO, 4: DEBUG, 5: TRACE")
	f.String("log-type", DefaultChainWatchConfig.LogType, "log type (plaintext or json)")
	genericconf.FileLoggingConfigAddOptions("file-logging", f, genericconf.DefaultFileLoggingConfig)
	genericconf.FileLoggingConfigAddOptions("dispute-log", f, genericconf.DefaultDisputeLogConfig)
	f.Bool("metrics", DefaultChainWatchConfig.Metrics, "enable metrics")
	genericconf.MetricsServerAddOptions("metrics-server", f)
	chainreader.ConfigAddOptions("chain-reader", f)
	f.StringSlice("channels", DefaultChainWatchConfig.Channels, "channels to watch for dispute events as chainId=address")

	k, err := confighelpers.BeginCommonParse(f, args)
	if err != nil {
		return nil, err
	}

	var config ChainWatchConfig
	if err := confighelpers.EndCommonParse(k, &config); err != nil {
		return nil, err
	}
	if config.Conf.Dump {
		err = confighelpers.DumpConfig(k, map[string]interface{}{
			"chain-reader.gas-oracle.url": "",
		})
		if err != nil {
			return nil, err
		}
		c, err := k.Marshal(koanfjson.Parser())
		if err != nil {
			return nil, fmt.Errorf("unable to marshal config file to JSON: %w", err)
		}
		fmt.Println(string(c))
		os.Exit(0)
	}
	return &config, nil
}

func parseChannels(entries []string) ([]watchedChannel, error) {
	channels := make([]watchedChannel, 0, len(entries))
	for _, entry := range entries {
		chainPart, addressPart, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("expected chainId=address, got %q", entry)
		}
		chainID, err := strconv.ParseUint(strings.TrimSpace(chainPart), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad chain id in %q: %w", entry, err)
		}
		addressPart = strings.TrimSpace(addressPart)
		if !common.IsHexAddress(addressPart) {
			return nil, fmt.Errorf("bad channel address in %q", entry)
		}
		channels = append(channels, watchedChannel{chainID: chainID, address: common.HexToAddress(addressPart)})
	}
	return channels, nil
}

func logEvent(event chainreader.Event) {
	switch e := event.(type) {
	case *chainreader.ChannelDisputedEvent:
		log.Warn("Channel disputed", "chainId", e.ChainID, "channel", e.Channel(), "disputer", e.Disputer, "nonce", e.Dispute.Nonce, "merkleRoot", e.Dispute.MerkleRoot, "consensusExpiry", e.Dispute.ConsensusExpiry)
	case *chainreader.ChannelDefundedEvent:
		log.Warn("Channel defunded", "chainId", e.ChainID, "channel", e.Channel(), "defunder", e.Defunder, "assets", e.DefundedAssets)
	case *chainreader.TransferDisputedEvent:
		log.Warn("Transfer disputed", "chainId", e.ChainID, "channel", e.Channel(), "transferId", e.State.TransferID, "disputer", e.Disputer, "expiry", e.Dispute.TransferDisputeExpiry)
	case *chainreader.TransferDefundedEvent:
		log.Warn("Transfer defunded", "chainId", e.ChainID, "channel", e.Channel(), "transferId", e.State.TransferID, "defunder", e.Defunder, "amounts", e.Balance.Amount)
	default:
		log.Warn("Unknown dispute event", "kind", event.Kind(), "channel", event.Channel())
	}
}

// journalRecord is one line of the dispute log.
type journalRecord struct {
	Kind    string            `json:"kind"`
	Channel common.Address    `json:"channel"`
	Event   chainreader.Event `json:"event"`
}

// journalEvent returns a listener appending each event to w as a JSON line.
func journalEvent(w io.Writer) func(chainreader.Event) {
	return func(event chainreader.Event) {
		line, err := json.Marshal(&journalRecord{Kind: event.Kind().String(), Channel: event.Channel(), Event: event})
		if err != nil {
			log.Error("Failed to encode dispute event", "kind", event.Kind(), "channel", event.Channel(), "err", err)
			return
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			log.Warn("Failed to journal dispute event", "kind", event.Kind(), "channel", event.Channel(), "err", err)
		}
	}
}

// reportChains logs head, sync state and gas price of every connected chain.
func reportChains(ctx context.Context, reader *chainreader.Reader) {
	for chainID := range reader.GetChainProviders() {
		head, err := reader.GetBlockNumber(ctx, chainID)
		if err != nil {
			log.Warn("Failed to read chain head", "chainId", chainID, "err", err)
			continue
		}
		syncing, err := reader.GetSyncing(ctx, chainID)
		if err != nil {
			log.Warn("Failed to read sync status", "chainId", chainID, "err", err)
		}
		gasPrice, err := reader.GetGasPrice(ctx, chainID)
		if err != nil {
			log.Warn("Failed to read gas price", "chainId", chainID, "err", err)
		}
		log.Info("Chain status", "chainId", chainID, "head", head, "syncing", syncing.Syncing, "gasPrice", gasPrice)
	}
}

func startup() error {
	config, err := parseChainWatch(os.Args[1:])
	if err != nil {
		confighelpers.PrintErrorAndExit(err, printSampleUsage)
	}
	if err := genericconf.InitLog(config.LogType, config.LogLevel, &config.FileLogging, genericconf.DefaultPathResolver("")); err != nil {
		return err
	}
	defer func() {
		if err := genericconf.CloseLogFile(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}()
	channels, err := parseChannels(config.Channels)
	if err != nil {
		return err
	}
	if err := config.ChainReader.Validate(); err != nil {
		return err
	}
	if len(config.ChainReader.ProviderURLs()) == 0 {
		confighelpers.PrintErrorAndExit(errors.New("please specify at least one --chain-reader.chain-providers entry"), printSampleUsage)
	}

	if config.Metrics {
		go metrics.CollectProcessMetrics(config.MetricsServer.UpdateInterval)
		exp.Setup(fmt.Sprintf("%v:%v", config.MetricsServer.Addr, config.MetricsServer.Port))
	}

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sigint
		cancel()
	}()

	providerConfig := func() *rpcclient.ClientConfig { return &config.ChainReader.Provider }
	providers, err := retry.UntilSucceeds(ctx, func() (*rpcclient.Providers, error) {
		return rpcclient.DialProviders(ctx, config.ChainReader.ProviderURLs(), providerConfig)
	})
	if err != nil {
		return err
	}
	defer providers.Close()

	clients := make(map[uint64]chaintypes.ChainClient)
	for chainID, client := range providers.EthClients() {
		clients[chainID] = client
	}
	reader, err := chainreader.NewReader(func() *chainreader.Config { return &config.ChainReader }, clients, nil)
	if err != nil {
		return err
	}
	reader.Start(ctx)
	defer reader.StopAndWait()

	vcsRevision, vcsTime := confighelpers.GetVersion()
	log.Info("Starting chainwatch", "revision", vcsRevision, "vcs.time", vcsTime, "chains", len(clients), "channels", len(channels))
	reportChains(ctx, reader)

	for _, kind := range chainreader.EventKinds {
		reader.Events().On(kind, logEvent, nil)
	}
	if config.DisputeLog.Enable {
		journal := genericconf.NewRotatingWriter(&config.DisputeLog, genericconf.DefaultPathResolver("")(config.DisputeLog.File))
		defer journal.Close()
		for _, kind := range chainreader.EventKinds {
			reader.Events().On(kind, journalEvent(journal), nil)
		}
	}
	for _, channel := range channels {
		if err := reader.RegisterChannel(ctx, channel.chainID, channel.address); err != nil {
			return fmt.Errorf("registering channel %v on chain %d: %w", channel.address, channel.chainID, err)
		}
		dispute, err := reader.GetChannelDispute(ctx, channel.chainID, channel.address, chaintypes.SafeBlock)
		if err != nil {
			log.Warn("Failed to read channel dispute", "chainId", channel.chainID, "channel", channel.address, "err", err)
			continue
		}
		if dispute != nil {
			log.Warn("Channel already in dispute", "chainId", channel.chainID, "channel", channel.address, "nonce", dispute.Nonce, "consensusExpiry", dispute.ConsensusExpiry)
		}
	}

	<-ctx.Done()
	log.Info("Shutting down chainwatch")
	return nil
}
