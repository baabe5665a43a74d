// Package ledger is the token accounting boundary the bridge debits from and
// credits to. Memory is the reference implementation used by tests and the
// local devnet.
package ledger

import (
	"context"
	"errors"

	"github.com/danmuck/bridgectl/internal/account"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrOutboundOverflow    = errors.New("ledger: outbound amount overflow")
	ErrInvalidSnapshot     = errors.New("ledger: invalid snapshot")
)

// Ledger holds balances for one endpoint. Debit and Credit return the amount
// actually moved, which can differ from the request for fee-charging tokens.
type Ledger interface {
	Debit(ctx context.Context, from account.Address, amount *uint256.Int) (*uint256.Int, error)
	Credit(ctx context.Context, to account.Address, amount *uint256.Int) (*uint256.Int, error)
	Transfer(ctx context.Context, from, to account.Address, amount *uint256.Int) (*uint256.Int, error)

	BalanceOf(a account.Address) *uint256.Int
	TotalSupply() *uint256.Int
	CirculatingSupply() *uint256.Int

	// Snapshot marks the current state. RevertToSnapshot undoes every change
	// made after the mark; DiscardSnapshot forgets it and keeps the changes.
	Snapshot() int
	RevertToSnapshot(id int) error
	DiscardSnapshot(id int)
}
