package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/danmuck/bridgectl/internal/bridge"
	"github.com/danmuck/bridgectl/internal/config"
	"github.com/danmuck/bridgectl/internal/ledger"
	"github.com/danmuck/bridgectl/internal/store"
	"github.com/danmuck/bridgectl/internal/transport"
	"github.com/rs/zerolog"
)

// devnet is every configured endpoint wired onto one loopback transport.
type devnet struct {
	net     *transport.Loopback
	bridges []*bridge.Bridge
}

func buildDevnet(rt runtimeConfig, dep config.Deployment, logger zerolog.Logger) (*devnet, error) {
	// Outbound nonces live next to the failed tables so a restart never
	// reuses a nonce that already has a record or credited marker.
	var nonces store.KV
	if rt.StoreDir != "" {
		if err := os.MkdirAll(rt.StoreDir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		f, err := store.OpenFile(filepath.Join(rt.StoreDir, "transport.json"))
		if err != nil {
			return nil, err
		}
		nonces = f
	}
	dn := &devnet{
		net: transport.NewLoopback(transport.LoopbackConfig{
			Fees:      dep.FeeModel(),
			Redeliver: dep.Redelivery(),
			Nonces:    nonces,
			Logger:    logger.With().Str("component", "loopback").Logger(),
		}),
	}
	sink := bridge.LogSink{Logger: logger}
	for _, ep := range dep.Endpoints {
		b, err := buildEndpoint(rt, dep, ep, dn.net, sink, logger)
		if err != nil {
			return nil, fmt.Errorf("endpoint %d (%s): %w", ep.ID, ep.Name, err)
		}
		if err := dn.net.Register(ep.ID, b); err != nil {
			return nil, err
		}
		dn.bridges = append(dn.bridges, b)
	}
	return dn, nil
}

func buildEndpoint(
	rt runtimeConfig,
	dep config.Deployment,
	ep config.EndpointConfig,
	net transport.Transport,
	sink bridge.Sink,
	logger zerolog.Logger,
) (*bridge.Bridge, error) {
	conv, err := dep.Converter(ep)
	if err != nil {
		return nil, err
	}
	ledgerCfg, err := dep.LedgerConfig(ep)
	if err != nil {
		return nil, err
	}
	led := ledger.NewMemory(ledgerCfg)
	balances, err := ep.ParsedBalances()
	if err != nil {
		return nil, err
	}
	for _, bal := range balances {
		led.Mint(bal.Account, bal.Amount)
	}
	policy, err := dep.Policy(ep)
	if err != nil {
		return nil, err
	}

	var kv store.KV = store.NewMemory()
	if rt.StoreDir != "" {
		f, err := store.OpenFile(filepath.Join(rt.StoreDir, fmt.Sprintf("endpoint-%d.json", ep.ID)))
		if err != nil {
			return nil, err
		}
		kv = f
	}

	return bridge.New(bridge.Config{
		Endpoint:       ep.ID,
		Address:        ep.BridgeAddress(),
		Converter:      conv,
		Ledger:         led,
		Transport:      net,
		Store:          kv,
		Burn:           ep.BurnAddress(),
		Policy:         policy,
		Sink:           sink,
		Logger:         logger.With().Uint16("endpoint", ep.ID).Str("name", ep.Name).Logger(),
		MaxReasonBytes: rt.MaxReasonBytes,
	})
}
