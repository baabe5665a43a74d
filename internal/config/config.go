// Package config loads the bridge deployment file: the shared decimals, the
// transport fee model, and every endpoint with its ledger and remote policy.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/bridgectl/internal/account"
	"github.com/danmuck/bridgectl/internal/decimals"
	"github.com/holiman/uint256"
	"github.com/pelletier/go-toml/v2"
)

const (
	LedgerModeMintBurn = "mint_burn"
	LedgerModeLockbox  = "lockbox"

	maxFeeBps = 10_000
)

type Deployment struct {
	SharedDecimals uint8            `toml:"shared_decimals"`
	Transport      TransportConfig  `toml:"transport"`
	Endpoints      []EndpointConfig `toml:"endpoints"`
}

type TransportConfig struct {
	BaseFee     uint64 `toml:"base_fee"`
	PerByteFee  uint64 `toml:"per_byte_fee"`
	GasPrice    uint64 `toml:"gas_price"`
	AltTokenFee uint64 `toml:"alt_token_fee"`

	// Automatic redelivery of stored payloads. Zero initial delay disables it.
	RedeliverInitialMS  uint64  `toml:"redeliver_initial_ms"`
	RedeliverMaxMS      uint64  `toml:"redeliver_max_ms"`
	RedeliverMultiplier float64 `toml:"redeliver_multiplier"`
	RedeliverJitter     bool    `toml:"redeliver_jitter"`
}

type EndpointConfig struct {
	ID                  uint16          `toml:"id"`
	Name                string          `toml:"name"`
	Address             string          `toml:"address"`
	LocalDecimals       uint8           `toml:"local_decimals"`
	LedgerMode          string          `toml:"ledger_mode"`
	Lockbox             string          `toml:"lockbox"`
	FeeBps              uint16          `toml:"fee_bps"`
	Burn                string          `toml:"burn"`
	CustomAdapterParams bool            `toml:"custom_adapter_params"`
	Remotes             []RemoteConfig  `toml:"remotes"`
	Balances            []BalanceConfig `toml:"balances"`
}

// RemoteConfig trusts another endpoint of the same deployment and sets the
// send policy towards it.
type RemoteConfig struct {
	Endpoint          uint16 `toml:"endpoint"`
	MinGasSend        uint64 `toml:"min_gas_send"`
	MinGasSendAndCall uint64 `toml:"min_gas_send_and_call"`
	PayloadLimit      int    `toml:"payload_limit"`
}

// BalanceConfig seeds a devnet balance. Amount is a decimal local amount.
type BalanceConfig struct {
	Account string `toml:"account"`
	Amount  string `toml:"amount"`
}

func LoadDeployment(path string) (Deployment, error) {
	var cfg Deployment
	if err := loadToml(path, &cfg); err != nil {
		return Deployment{}, err
	}
	applyDefaults(&cfg)
	if err := ValidateDeployment(cfg); err != nil {
		return Deployment{}, err
	}
	return cfg, nil
}

func ParseDeployment(data []byte) (Deployment, error) {
	var cfg Deployment
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Deployment{}, fmt.Errorf("config parse failed: %w", err)
	}
	applyDefaults(&cfg)
	if err := ValidateDeployment(cfg); err != nil {
		return Deployment{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *Deployment) {
	for i := range cfg.Endpoints {
		ep := &cfg.Endpoints[i]
		if strings.TrimSpace(ep.LedgerMode) == "" {
			ep.LedgerMode = LedgerModeMintBurn
		}
		if strings.TrimSpace(ep.Name) == "" {
			ep.Name = fmt.Sprintf("endpoint-%d", ep.ID)
		}
	}
}

func ValidateDeployment(cfg Deployment) error {
	if len(cfg.Endpoints) == 0 {
		return fmt.Errorf("deployment has no endpoints")
	}
	if t := cfg.Transport; t.RedeliverInitialMS > 0 && t.RedeliverMultiplier != 0 && t.RedeliverMultiplier < 1 {
		return fmt.Errorf("transport redeliver_multiplier %v below 1", t.RedeliverMultiplier)
	}
	ids := make(map[uint16]struct{}, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		if _, dup := ids[ep.ID]; dup {
			return fmt.Errorf("endpoint id %d declared twice", ep.ID)
		}
		ids[ep.ID] = struct{}{}
	}
	for i, ep := range cfg.Endpoints {
		if err := ValidateEndpoint(ep, cfg.SharedDecimals, ids); err != nil {
			return fmt.Errorf("endpoint[%d] invalid: %w", i, err)
		}
	}
	return nil
}

func ValidateEndpoint(ep EndpointConfig, sharedDecimals uint8, known map[uint16]struct{}) error {
	if ep.LocalDecimals < sharedDecimals {
		return fmt.Errorf("local_decimals %d below shared_decimals %d", ep.LocalDecimals, sharedDecimals)
	}
	if gap := ep.LocalDecimals - sharedDecimals; gap > decimals.MaxRateExponent {
		return fmt.Errorf("decimal gap %d exceeds %d", gap, decimals.MaxRateExponent)
	}
	addr, err := account.ParseAddress(ep.Address)
	if err != nil {
		return fmt.Errorf("address: %w", err)
	}
	if addr.IsZero() {
		return fmt.Errorf("address must not be zero")
	}
	switch ep.LedgerMode {
	case LedgerModeMintBurn:
	case LedgerModeLockbox:
		if strings.TrimSpace(ep.Lockbox) != "" {
			if _, err := account.ParseAddress(ep.Lockbox); err != nil {
				return fmt.Errorf("lockbox: %w", err)
			}
		}
	default:
		return fmt.Errorf("unknown ledger_mode %q", ep.LedgerMode)
	}
	if ep.FeeBps > maxFeeBps {
		return fmt.Errorf("fee_bps %d above %d", ep.FeeBps, maxFeeBps)
	}
	if strings.TrimSpace(ep.Burn) != "" {
		if _, err := account.ParseAddress(ep.Burn); err != nil {
			return fmt.Errorf("burn: %w", err)
		}
	}
	seen := make(map[uint16]struct{}, len(ep.Remotes))
	for j, r := range ep.Remotes {
		if r.Endpoint == ep.ID {
			return fmt.Errorf("remote[%d] points at itself", j)
		}
		if _, ok := known[r.Endpoint]; !ok {
			return fmt.Errorf("remote[%d] unknown endpoint %d", j, r.Endpoint)
		}
		if _, dup := seen[r.Endpoint]; dup {
			return fmt.Errorf("remote[%d] endpoint %d declared twice", j, r.Endpoint)
		}
		seen[r.Endpoint] = struct{}{}
		if r.PayloadLimit < 0 {
			return fmt.Errorf("remote[%d] payload_limit must not be negative", j)
		}
		if ep.CustomAdapterParams && (r.MinGasSend == 0 || r.MinGasSendAndCall == 0) {
			return fmt.Errorf("remote[%d] needs min gas when custom_adapter_params is set", j)
		}
	}
	for j, b := range ep.Balances {
		if _, err := account.ParseAddress(b.Account); err != nil {
			return fmt.Errorf("balance[%d] account: %w", j, err)
		}
		if _, err := uint256.FromDecimal(strings.TrimSpace(b.Amount)); err != nil {
			return fmt.Errorf("balance[%d] amount %q: %w", j, b.Amount, err)
		}
	}
	return nil
}

// Endpoint returns the endpoint with id.
func (d Deployment) Endpoint(id uint16) (EndpointConfig, bool) {
	for _, ep := range d.Endpoints {
		if ep.ID == id {
			return ep, true
		}
	}
	return EndpointConfig{}, false
}
