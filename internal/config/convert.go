package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/bridgectl/internal/account"
	"github.com/danmuck/bridgectl/internal/bridge"
	"github.com/danmuck/bridgectl/internal/decimals"
	"github.com/danmuck/bridgectl/internal/ledger"
	"github.com/danmuck/bridgectl/internal/protocol"
	"github.com/danmuck/bridgectl/internal/transport"
	"github.com/holiman/uint256"
)

// Balance is a parsed devnet genesis balance.
type Balance struct {
	Account account.Address
	Amount  *uint256.Int
}

func (d Deployment) FeeModel() transport.FeeModel {
	return transport.FeeModel{
		Base:        d.Transport.BaseFee,
		PerByte:     d.Transport.PerByteFee,
		GasPrice:    d.Transport.GasPrice,
		AltTokenFee: d.Transport.AltTokenFee,
	}
}

func (d Deployment) Redelivery() transport.BackoffConfig {
	t := d.Transport
	return transport.BackoffConfig{
		InitialDelay: time.Duration(t.RedeliverInitialMS) * time.Millisecond,
		Multiplier:   t.RedeliverMultiplier,
		MaxDelay:     time.Duration(t.RedeliverMaxMS) * time.Millisecond,
		Jitter:       t.RedeliverJitter,
	}
}

func (d Deployment) Converter(ep EndpointConfig) (*decimals.Converter, error) {
	return decimals.NewConverter(ep.LocalDecimals, d.SharedDecimals)
}

func (ep EndpointConfig) BridgeAddress() account.Address {
	addr, _ := account.ParseAddress(ep.Address)
	return addr
}

func (ep EndpointConfig) BurnAddress() account.Address {
	if strings.TrimSpace(ep.Burn) == "" {
		return account.BurnAddress
	}
	addr, _ := account.ParseAddress(ep.Burn)
	return addr
}

// LedgerConfig builds the memory ledger config. A lockbox defaults to the
// bridge address, and the outbound cap is the largest wire-representable
// amount.
func (d Deployment) LedgerConfig(ep EndpointConfig) (ledger.MemoryConfig, error) {
	cfg := ledger.MemoryConfig{
		FeeBps:       ep.FeeBps,
		FeeCollector: ep.BridgeAddress(),
	}
	switch ep.LedgerMode {
	case LedgerModeLockbox:
		conv, err := d.Converter(ep)
		if err != nil {
			return ledger.MemoryConfig{}, err
		}
		cfg.Mode = ledger.ModeLockbox
		cfg.Lockbox = ep.BridgeAddress()
		if strings.TrimSpace(ep.Lockbox) != "" {
			cfg.Lockbox, _ = account.ParseAddress(ep.Lockbox)
		}
		cfg.OutboundCap = conv.MaxLocal()
	default:
		cfg.Mode = ledger.ModeMintBurn
	}
	return cfg, nil
}

// Policy resolves the endpoint's remotes against the deployment.
func (d Deployment) Policy(ep EndpointConfig) (bridge.Policy, error) {
	p := bridge.Policy{
		UseCustomAdapterParams: ep.CustomAdapterParams,
		MinDstGas:              make(map[uint16]map[protocol.PacketType]uint64, len(ep.Remotes)),
		PayloadSizeLimit:       make(map[uint16]int, len(ep.Remotes)),
		TrustedRemotes:         make(map[uint16][]byte, len(ep.Remotes)),
	}
	for _, r := range ep.Remotes {
		remote, ok := d.Endpoint(r.Endpoint)
		if !ok {
			return bridge.Policy{}, fmt.Errorf("endpoint %d: unknown remote %d", ep.ID, r.Endpoint)
		}
		p.TrustedRemotes[r.Endpoint] = remote.BridgeAddress().Bytes()
		p.MinDstGas[r.Endpoint] = map[protocol.PacketType]uint64{
			protocol.PTSend:        r.MinGasSend,
			protocol.PTSendAndCall: r.MinGasSendAndCall,
		}
		if r.PayloadLimit > 0 {
			p.PayloadSizeLimit[r.Endpoint] = r.PayloadLimit
		}
	}
	return p, nil
}

func (ep EndpointConfig) ParsedBalances() ([]Balance, error) {
	out := make([]Balance, 0, len(ep.Balances))
	for _, b := range ep.Balances {
		addr, err := account.ParseAddress(b.Account)
		if err != nil {
			return nil, err
		}
		amount, err := uint256.FromDecimal(strings.TrimSpace(b.Amount))
		if err != nil {
			return nil, fmt.Errorf("balance amount %q: %w", b.Amount, err)
		}
		out = append(out, Balance{Account: addr, Amount: amount})
	}
	return out, nil
}
