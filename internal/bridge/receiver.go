package bridge

import (
	"context"
	"sync"

	"github.com/danmuck/bridgectl/internal/account"
	"github.com/danmuck/bridgectl/internal/ledger"
	"github.com/holiman/uint256"
)

// Call is what a receiver hook sees for one delivered SEND_AND_CALL packet.
// The escrowed amount has already been released to To when the hook runs.
type Call struct {
	Src        uint16
	SrcAddress []byte
	Nonce      uint64
	From       []byte
	To         account.Address
	Amount     *uint256.Int
	Payload    []byte

	// Gas meters the hook's work. Hooks charge it with Consume.
	Gas *Gas
	// Ledger lets the hook move the funds it just received. Every change is
	// rolled back when the hook fails.
	Ledger ledger.Ledger
}

// Receiver is implemented by destination applications that accept callbacks.
type Receiver interface {
	OnReceived(ctx context.Context, call Call) error
}

type ReceiverFunc func(ctx context.Context, call Call) error

func (f ReceiverFunc) OnReceived(ctx context.Context, call Call) error {
	return f(ctx, call)
}

// Registry maps local accounts to their callback hooks. An account without an
// entry is not callable.
type Registry struct {
	mu        sync.RWMutex
	receivers map[account.Address]Receiver
}

func NewRegistry() *Registry {
	return &Registry{receivers: make(map[account.Address]Receiver)}
}

func (r *Registry) Register(addr account.Address, recv Receiver) error {
	if addr.IsZero() {
		return ErrEmptyReceiverKey
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receivers[addr] = recv
	return nil
}

func (r *Registry) Unregister(addr account.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.receivers, addr)
}

func (r *Registry) Lookup(addr account.Address) (Receiver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	recv, ok := r.receivers[addr]
	return recv, ok && recv != nil
}
