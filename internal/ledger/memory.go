package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/danmuck/bridgectl/internal/account"
	"github.com/holiman/uint256"
)

// Mode selects how bridge debits and credits affect supply.
type Mode string

const (
	// ModeMintBurn burns on debit and mints on credit.
	ModeMintBurn Mode = "mint_burn"
	// ModeLockbox locks debited funds in the lockbox account and releases
	// them on credit. Total supply is unchanged by bridge traffic.
	ModeLockbox Mode = "lockbox"
)

const bpsDenominator = 10_000

// MemoryConfig configures a Memory ledger.
type MemoryConfig struct {
	Mode    Mode
	Lockbox account.Address
	// FeeBps is charged on every transfer between accounts, including lockbox
	// moves. The fee is credited to FeeCollector.
	FeeBps       uint16
	FeeCollector account.Address
	// OutboundCap bounds the total amount locked in lockbox mode. Nil means no cap.
	OutboundCap *uint256.Int
}

type memoryState struct {
	balances map[account.Address]*uint256.Int
	supply   *uint256.Int
	outbound *uint256.Int
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		balances: make(map[account.Address]*uint256.Int, len(s.balances)),
		supply:   s.supply.Clone(),
		outbound: s.outbound.Clone(),
	}
	for k, v := range s.balances {
		out.balances[k] = v.Clone()
	}
	return out
}

// Memory is an in-process Ledger.
type Memory struct {
	mu        sync.Mutex
	cfg       MemoryConfig
	state     memoryState
	snapshots map[int]memoryState
	nextSnap  int
}

var _ Ledger = (*Memory)(nil)

func NewMemory(cfg MemoryConfig) *Memory {
	if cfg.Mode == "" {
		cfg.Mode = ModeMintBurn
	}
	return &Memory{
		cfg: cfg,
		state: memoryState{
			balances: make(map[account.Address]*uint256.Int),
			supply:   new(uint256.Int),
			outbound: new(uint256.Int),
		},
		snapshots: make(map[int]memoryState),
	}
}

func (m *Memory) Mode() Mode {
	return m.cfg.Mode
}

// Mint creates supply outside of bridge traffic, for seeding balances.
func (m *Memory) Mint(to account.Address, amount *uint256.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.add(to, amount)
	m.state.supply.Add(m.state.supply, amount)
}

func (m *Memory) Debit(_ context.Context, from account.Address, amount *uint256.Int) (*uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.cfg.Mode {
	case ModeLockbox:
		actual, err := m.move(from, m.cfg.Lockbox, amount)
		if err != nil {
			return nil, err
		}
		next := new(uint256.Int).Add(m.state.outbound, actual)
		if m.cfg.OutboundCap != nil && next.Gt(m.cfg.OutboundCap) {
			// undo the lock before reporting
			_ = m.sub(m.cfg.Lockbox, actual)
			m.add(from, amount)
			if fee := new(uint256.Int).Sub(amount, actual); !fee.IsZero() {
				_ = m.sub(m.cfg.FeeCollector, fee)
			}
			return nil, fmt.Errorf("%w: %s exceeds %s", ErrOutboundOverflow, next.Dec(), m.cfg.OutboundCap.Dec())
		}
		m.state.outbound = next
		return actual, nil
	default:
		if err := m.sub(from, amount); err != nil {
			return nil, err
		}
		m.state.supply.Sub(m.state.supply, amount)
		return amount.Clone(), nil
	}
}

func (m *Memory) Credit(_ context.Context, to account.Address, amount *uint256.Int) (*uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.cfg.Mode {
	case ModeLockbox:
		if m.state.outbound.Lt(amount) {
			m.state.outbound.Clear()
		} else {
			m.state.outbound.Sub(m.state.outbound, amount)
		}
		if to == m.cfg.Lockbox {
			return amount.Clone(), nil
		}
		return m.move(m.cfg.Lockbox, to, amount)
	default:
		m.add(to, amount)
		m.state.supply.Add(m.state.supply, amount)
		return amount.Clone(), nil
	}
}

func (m *Memory) Transfer(_ context.Context, from, to account.Address, amount *uint256.Int) (*uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move(from, to, amount)
}

func (m *Memory) BalanceOf(a account.Address) *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.state.balances[a]; ok {
		return b.Clone()
	}
	return new(uint256.Int)
}

func (m *Memory) TotalSupply() *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.supply.Clone()
}

// CirculatingSupply excludes funds held by the lockbox.
func (m *Memory) CirculatingSupply() *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.state.supply.Clone()
	if m.cfg.Mode == ModeLockbox {
		if locked, ok := m.state.balances[m.cfg.Lockbox]; ok {
			out.Sub(out, locked)
		}
	}
	return out
}

// Outbound returns the amount currently locked for other endpoints.
func (m *Memory) Outbound() *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.outbound.Clone()
}

func (m *Memory) Snapshot() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSnap
	m.nextSnap++
	m.snapshots[id] = m.state.clone()
	return id
}

func (m *Memory) RevertToSnapshot(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidSnapshot, id)
	}
	m.state = snap
	// later snapshots describe states that no longer exist
	for k := range m.snapshots {
		if k >= id {
			delete(m.snapshots, k)
		}
	}
	return nil
}

func (m *Memory) DiscardSnapshot(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, id)
}

func (m *Memory) move(from, to account.Address, amount *uint256.Int) (*uint256.Int, error) {
	if err := m.sub(from, amount); err != nil {
		return nil, err
	}
	fee := m.fee(amount)
	actual := new(uint256.Int).Sub(amount, fee)
	m.add(to, actual)
	if !fee.IsZero() {
		m.add(m.cfg.FeeCollector, fee)
	}
	return actual, nil
}

func (m *Memory) fee(amount *uint256.Int) *uint256.Int {
	if m.cfg.FeeBps == 0 {
		return new(uint256.Int)
	}
	fee := new(uint256.Int).Mul(amount, uint256.NewInt(uint64(m.cfg.FeeBps)))
	return fee.Div(fee, uint256.NewInt(bpsDenominator))
}

func (m *Memory) add(a account.Address, amount *uint256.Int) {
	b, ok := m.state.balances[a]
	if !ok {
		b = new(uint256.Int)
		m.state.balances[a] = b
	}
	b.Add(b, amount)
}

func (m *Memory) sub(a account.Address, amount *uint256.Int) error {
	b, ok := m.state.balances[a]
	if !ok {
		b = new(uint256.Int)
	}
	if b.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, a, b.Dec(), amount.Dec())
	}
	if ok {
		b.Sub(b, amount)
	}
	return nil
}
