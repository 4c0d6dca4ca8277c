// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package chainreader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/offchainlabs/vector-reader/chaintypes"
)

// GasOracle quotes a gas price for a chain without going through its
// provider.
type GasOracle interface {
	GasPrice(ctx context.Context, chainID uint64) (*big.Int, error)
}

var ErrNoOracleQuote = errors.New("gas oracle returned no quote")

type HTTPGasOracle struct {
	config *GasOracleConfig
	client *http.Client
}

func NewHTTPGasOracle(config *GasOracleConfig) *HTTPGasOracle {
	return &HTTPGasOracle{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

type gasOracleQuote struct {
	Rapid json.Number `json:"rapid"`
}

type gasOracleResponse struct {
	Data  *gasOracleQuote `json:"data"`
	Rapid json.Number     `json:"rapid"`
}

// GasPrice fetches the rapid price. Both {"data":{"rapid":n}} and {"rapid":n}
// bodies are accepted.
func (o *HTTPGasOracle) GasPrice(ctx context.Context, chainID uint64) (*big.Int, error) {
	if chainID != o.config.PrimaryChainID {
		return nil, fmt.Errorf("gas oracle only quotes chain %d, not %d", o.config.PrimaryChainID, chainID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.config.URL, nil)
	if err != nil {
		return nil, err
	}
	res, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error with status %d returned by gas oracle: %s", res.StatusCode, http.StatusText(res.StatusCode))
	}
	decoder := json.NewDecoder(res.Body)
	decoder.UseNumber()
	var response gasOracleResponse
	if err := decoder.Decode(&response); err != nil {
		return nil, fmt.Errorf("decoding gas oracle response: %w", err)
	}
	rapid := response.Rapid
	if response.Data != nil && response.Data.Rapid != "" {
		rapid = response.Data.Rapid
	}
	if rapid == "" {
		return nil, ErrNoOracleQuote
	}
	price, ok := new(big.Int).SetString(rapid.String(), 10)
	if !ok || price.Sign() <= 0 {
		return nil, fmt.Errorf("bad gas oracle quote %q", rapid)
	}
	return price, nil
}

// GetGasPrice prefers the oracle quote on the primary chain, used as is.
// Otherwise the provider suggestion is bumped by gas-price-bump-percent. The
// result never goes below min-gas-price.
func (r *Reader) GetGasPrice(ctx context.Context, chainID uint64) (*big.Int, error) {
	config := r.config()
	return call(ctx, r, chainID, "getGasPrice", func(ctx context.Context, client chaintypes.ChainClient) (*big.Int, error) {
		var price *uint256.Int
		if r.oracle != nil && chainID == config.GasOracle.PrimaryChainID {
			quote, err := r.oracle.GasPrice(ctx, chainID)
			if err != nil {
				log.Warn("Gas oracle failed, using provider", "chainId", chainID, "err", err)
			} else if quoted, overflow := uint256.FromBig(quote); !overflow {
				price = quoted
			}
		}
		if price == nil {
			suggested, err := client.SuggestGasPrice(ctx)
			if err != nil {
				return nil, err
			}
			price = bumpGasPrice(suggested, config.GasPriceBumpPercent)
		}
		floor := uint256.NewInt(config.MinGasPrice)
		if price.Lt(floor) {
			price = floor
		}
		return price.ToBig(), nil
	})
}

// bumpGasPrice returns price + price*percent/100, saturating at 2^256-1.
func bumpGasPrice(price *big.Int, percent uint64) *uint256.Int {
	base, overflow := uint256.FromBig(price)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	bump := new(uint256.Int)
	if _, overflow := bump.MulOverflow(base, uint256.NewInt(percent)); overflow {
		return new(uint256.Int).SetAllOne()
	}
	bump.Div(bump, uint256.NewInt(100))
	total, overflow := new(uint256.Int).AddOverflow(base, bump)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return total
}
