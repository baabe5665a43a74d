package bridge

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/danmuck/bridgectl/internal/account"
	"github.com/danmuck/bridgectl/internal/decimals"
	"github.com/danmuck/bridgectl/internal/ledger"
	"github.com/danmuck/bridgectl/internal/observability"
	"github.com/danmuck/bridgectl/internal/protocol"
	"github.com/danmuck/bridgectl/internal/store"
	"github.com/danmuck/bridgectl/internal/transport"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

// DefaultPayloadSizeLimit applies to destinations without an explicit limit.
const DefaultPayloadSizeLimit = 10_000

// Policy is the per-deployment send and receive policy. It is fixed when the
// bridge is built.
type Policy struct {
	// UseCustomAdapterParams lets senders supply adapter params, which are then
	// checked against MinDstGas. When unset the params must be empty.
	UseCustomAdapterParams bool
	// MinDstGas is the minimum destination gas per endpoint and packet type.
	MinDstGas map[uint16]map[protocol.PacketType]uint64
	// PayloadSizeLimit overrides DefaultPayloadSizeLimit per destination.
	PayloadSizeLimit map[uint16]int
	// TrustedRemotes is the bridge address on each remote endpoint.
	TrustedRemotes map[uint16][]byte
}

func (p Policy) minGas(dst uint16, pt protocol.PacketType) (uint64, bool) {
	byType, ok := p.MinDstGas[dst]
	if !ok {
		return 0, false
	}
	gas, ok := byType[pt]
	return gas, ok && gas > 0
}

func (p Policy) payloadLimit(dst uint16) int {
	if n, ok := p.PayloadSizeLimit[dst]; ok && n > 0 {
		return n
	}
	return DefaultPayloadSizeLimit
}

func (p Policy) trustedRemote(id uint16) ([]byte, bool) {
	remote, ok := p.TrustedRemotes[id]
	return remote, ok && len(remote) > 0
}

type Config struct {
	// Endpoint is the local endpoint id.
	Endpoint uint16
	// Address is the bridge's own account. It is the source address on the
	// wire and the escrow account for callback packets.
	Address   account.Address
	Converter *decimals.Converter
	Ledger    ledger.Ledger
	Transport transport.Transport
	// Store holds the failed-callback table. Defaults to an in-memory store.
	Store     store.KV
	Receivers *Registry
	Burn      account.Address
	Policy    Policy
	Sink      Sink
	Logger    zerolog.Logger
	// MaxReasonBytes caps stored failure reasons. Defaults to DefaultMaxReasonBytes.
	MaxReasonBytes int
}

// Bridge is one endpoint's outbound path, inbound dispatcher and retry
// manager. Mutating operations are serialized; a receiver hook runs while the
// bridge is held, so any operation started while a hook runs fails with
// ErrReentrantCall instead of waiting on it.
type Bridge struct {
	mu       sync.Mutex
	inHook   atomic.Bool
	cfg      Config
	failed   *FailedTable
	resolver account.Resolver
	log      zerolog.Logger
}

func New(cfg Config) (*Bridge, error) {
	if cfg.Converter == nil {
		return nil, fmt.Errorf("%w: converter is required", ErrInvalidConfig)
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("%w: ledger is required", ErrInvalidConfig)
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("%w: transport is required", ErrInvalidConfig)
	}
	if cfg.Address.IsZero() {
		return nil, fmt.Errorf("%w: bridge address is required", ErrInvalidConfig)
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.Receivers == nil {
		cfg.Receivers = NewRegistry()
	}
	if cfg.MaxReasonBytes <= 0 {
		cfg.MaxReasonBytes = DefaultMaxReasonBytes
	}
	logger := cfg.Logger.With().Uint16("endpoint", cfg.Endpoint).Logger()
	if cfg.Sink == nil {
		cfg.Sink = LogSink{Logger: logger}
	}
	return &Bridge{
		cfg:      cfg,
		failed:   NewFailedTable(cfg.Store),
		resolver: account.NewResolver(cfg.Burn),
		log:      logger,
	}, nil
}

func (b *Bridge) Endpoint() uint16 {
	return b.cfg.Endpoint
}

func (b *Bridge) Address() account.Address {
	return b.cfg.Address
}

func (b *Bridge) Converter() *decimals.Converter {
	return b.cfg.Converter
}

func (b *Bridge) Ledger() ledger.Ledger {
	return b.cfg.Ledger
}

func (b *Bridge) Receivers() *Registry {
	return b.cfg.Receivers
}

func (b *Bridge) Resolver() account.Resolver {
	return b.resolver
}

// FailedMessages lists callbacks awaiting retry.
func (b *Bridge) FailedMessages() ([]FailedRecord, error) {
	return b.failed.List()
}

// FailedMessage returns the stored hash for one key.
func (b *Bridge) FailedMessage(k FailedKey) (Hash, bool, error) {
	return b.failed.Get(k)
}

// EscrowBalance is the bridge account's ledger balance.
func (b *Bridge) EscrowBalance() *uint256.Int {
	return b.cfg.Ledger.BalanceOf(b.cfg.Address)
}

// StuckEscrow is escrow credited for callback packets that had no usable
// receiver and therefore no retry path.
func (b *Bridge) StuckEscrow() (*uint256.Int, error) {
	return b.failed.Stuck()
}

type execKey struct {
	b *Bridge
}

// enter serializes a mutating operation. A call carrying this bridge's
// context mark, or any call made while a hook runs, is rejected instead of
// deadlocking on the held lock.
func (b *Bridge) enter(ctx context.Context) (context.Context, func(), error) {
	if ctx.Value(execKey{b: b}) != nil || b.inHook.Load() {
		return nil, nil, ErrReentrantCall
	}
	b.mu.Lock()
	return context.WithValue(ctx, execKey{b: b}, true), b.mu.Unlock, nil
}

func (b *Bridge) isTrustedSource(src uint16, srcAddress []byte) bool {
	remote, ok := b.cfg.Policy.trustedRemote(src)
	return ok && bytes.Equal(remote, srcAddress)
}

func (b *Bridge) emit(e Event) {
	observability.RecordEvent(b.cfg.Endpoint, e.Kind())
	b.cfg.Sink.Emit(e)
}
