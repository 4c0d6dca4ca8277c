// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package chainreader

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/offchainlabs/vector-reader/chaintypes"
	"github.com/offchainlabs/vector-reader/util/merkletree"
	"github.com/offchainlabs/vector-reader/util/rpcclient"
)

type GasOracleConfig struct {
	URL            string        `koanf:"url"`
	Timeout        time.Duration `koanf:"timeout"`
	PrimaryChainID uint64        `koanf:"primary-chain-id"`
}

var DefaultGasOracleConfig = GasOracleConfig{
	URL:            "",
	Timeout:        5 * time.Second,
	PrimaryChainID: 1,
}

func GasOracleConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".url", DefaultGasOracleConfig.URL, "gas price oracle consulted before the provider on the primary chain (empty to disable)")
	f.Duration(prefix+".timeout", DefaultGasOracleConfig.Timeout, "gas price oracle request timeout")
	f.Uint64(prefix+".primary-chain-id", DefaultGasOracleConfig.PrimaryChainID, "chain the gas price oracle quotes for")
}

type Config struct {
	ChainProviders       []string               `koanf:"chain-providers"`
	MaxRetries           int                    `koanf:"max-retries" reload:"hot"`
	DefaultConfirmations uint64                 `koanf:"default-confirmations"`
	Confirmations        []string               `koanf:"confirmations"`
	TestChains           []string               `koanf:"test-chains"`
	PollInterval         time.Duration          `koanf:"poll-interval" reload:"hot"`
	MinGasPrice          uint64                 `koanf:"min-gas-price" reload:"hot"`
	GasPriceBumpPercent  uint64                 `koanf:"gas-price-bump-percent" reload:"hot"`
	LocalEvaluation      bool                   `koanf:"local-evaluation" reload:"hot"`
	LocalGasLimit        uint64                 `koanf:"local-gas-limit"`
	OddNodePolicy        string                 `koanf:"odd-node-policy"`
	Provider             rpcclient.ClientConfig `koanf:"provider"`
	GasOracle            GasOracleConfig        `koanf:"gas-oracle"`
}

type ConfigFetcher func() *Config

var DefaultConfig = Config{
	ChainProviders:       []string{},
	MaxRetries:           3,
	DefaultConfirmations: chaintypes.DefaultConfirmationCount,
	Confirmations:        []string{},
	TestChains:           defaultTestChains(),
	PollInterval:         15 * time.Second,
	MinGasPrice:          5_000_000_000,
	GasPriceBumpPercent:  30,
	LocalEvaluation:      true,
	LocalGasLimit:        30_000_000,
	OddNodePolicy:        "carry",
	Provider:             rpcclient.DefaultClientConfig,
	GasOracle:            DefaultGasOracleConfig,
}

var TestConfig = Config{
	ChainProviders:       []string{},
	MaxRetries:           3,
	DefaultConfirmations: chaintypes.DefaultConfirmationCount,
	Confirmations:        []string{},
	TestChains:           defaultTestChains(),
	PollInterval:         50 * time.Millisecond,
	MinGasPrice:          5_000_000_000,
	GasPriceBumpPercent:  30,
	LocalEvaluation:      true,
	LocalGasLimit:        30_000_000,
	OddNodePolicy:        "carry",
	Provider:             rpcclient.TestClientConfig,
	GasOracle:            DefaultGasOracleConfig,
}

func defaultTestChains() []string {
	chains := make([]string, len(chaintypes.DefaultTestChainIDs))
	for i, id := range chaintypes.DefaultTestChainIDs {
		chains[i] = strconv.FormatUint(id, 10)
	}
	return chains
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.StringSlice(prefix+".chain-providers", DefaultConfig.ChainProviders, "rpc endpoints as chainId=url")
	f.Int(prefix+".max-retries", DefaultConfig.MaxRetries, "attempts per chain read before giving up")
	f.Uint64(prefix+".default-confirmations", DefaultConfig.DefaultConfirmations, "confirmations for chains without a specific entry")
	f.StringSlice(prefix+".confirmations", DefaultConfig.Confirmations, "per chain confirmation overrides as chainId=count")
	f.StringSlice(prefix+".test-chains", DefaultConfig.TestChains, "chains read at the latest block instead of a confirmed one")
	f.Duration(prefix+".poll-interval", DefaultConfig.PollInterval, "how often registered channels are scanned for dispute events")
	f.Uint64(prefix+".min-gas-price", DefaultConfig.MinGasPrice, "floor applied to reported gas prices, in wei")
	f.Uint64(prefix+".gas-price-bump-percent", DefaultConfig.GasPriceBumpPercent, "percentage added to provider gas price suggestions")
	f.Bool(prefix+".local-evaluation", DefaultConfig.LocalEvaluation, "evaluate transfer definitions against supplied bytecode before calling the chain")
	f.Uint64(prefix+".local-gas-limit", DefaultConfig.LocalGasLimit, "gas available to local evaluation")
	f.String(prefix+".odd-node-policy", DefaultConfig.OddNodePolicy, "merkle odd node handling, carry or duplicate; must match the on-chain verifier")
	rpcclient.RPCClientAddOptions(prefix+".provider", f, &DefaultConfig.Provider)
	GasOracleConfigAddOptions(prefix+".gas-oracle", f)
}

func parseChainID(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(s), 10, 64)
}

func splitPair(entry string) (uint64, string, error) {
	key, value, ok := strings.Cut(entry, "=")
	if !ok {
		return 0, "", fmt.Errorf("expected chainId=value, got %q", entry)
	}
	chainID, err := parseChainID(key)
	if err != nil {
		return 0, "", fmt.Errorf("bad chain id in %q: %w", entry, err)
	}
	return chainID, strings.TrimSpace(value), nil
}

func parseProviderURLs(entries []string) (map[uint64]string, error) {
	urls := make(map[uint64]string, len(entries))
	for _, entry := range entries {
		chainID, url, err := splitPair(entry)
		if err != nil {
			return nil, err
		}
		if url == "" {
			return nil, fmt.Errorf("empty url for chain %d", chainID)
		}
		urls[chainID] = url
	}
	return urls, nil
}

func parseConfirmation(entry string) (uint64, uint64, error) {
	chainID, value, err := splitPair(entry)
	if err != nil {
		return 0, 0, err
	}
	count, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad count in %q: %w", entry, err)
	}
	return chainID, count, nil
}

func parseOddNodePolicy(policy string) (merkletree.OddNodePolicy, error) {
	switch policy {
	case "carry", "":
		return merkletree.CarryOdd, nil
	case "duplicate":
		return merkletree.DuplicateOdd, nil
	}
	return merkletree.CarryOdd, fmt.Errorf("odd-node-policy must be carry or duplicate, got %q", policy)
}

// Validate only inspects c. The accessors below derive their values from the
// exported fields on every call, so a fetcher may hand out fresh or reloaded
// copies.
func (c *Config) Validate() error {
	if c.MaxRetries < 1 {
		return errors.New("max-retries must be at least 1")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll-interval must be positive")
	}
	if _, err := parseProviderURLs(c.ChainProviders); err != nil {
		return fmt.Errorf("chain-providers: %w", err)
	}
	for _, entry := range c.Confirmations {
		if _, _, err := parseConfirmation(entry); err != nil {
			return fmt.Errorf("confirmations: %w", err)
		}
	}
	for _, entry := range c.TestChains {
		if _, err := parseChainID(entry); err != nil {
			return fmt.Errorf("test-chains: %w", err)
		}
	}
	if _, err := parseOddNodePolicy(c.OddNodePolicy); err != nil {
		return err
	}
	return nil
}

// ProviderURLs is empty when chain-providers does not validate.
func (c *Config) ProviderURLs() map[uint64]string {
	urls, err := parseProviderURLs(c.ChainProviders)
	if err != nil {
		return map[uint64]string{}
	}
	return urls
}

// ConfirmationsFor prefers the last matching confirmations entry, then the
// built-in table, then default-confirmations.
func (c *Config) ConfirmationsFor(chainID uint64) uint64 {
	for i := len(c.Confirmations) - 1; i >= 0; i-- {
		id, count, err := parseConfirmation(c.Confirmations[i])
		if err == nil && id == chainID {
			return count
		}
	}
	if count, ok := chaintypes.DefaultConfirmations[chainID]; ok {
		return count
	}
	return c.DefaultConfirmations
}

func (c *Config) IsTestChain(chainID uint64) bool {
	for _, entry := range c.TestChains {
		if id, err := parseChainID(entry); err == nil && id == chainID {
			return true
		}
	}
	return false
}

func (c *Config) MerkleOddNodePolicy() merkletree.OddNodePolicy {
	policy, _ := parseOddNodePolicy(c.OddNodePolicy)
	return policy
}
