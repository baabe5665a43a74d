package bridge

import (
	"bytes"
	"context"
	"fmt"

	"github.com/danmuck/bridgectl/internal/account"
	"github.com/danmuck/bridgectl/internal/observability"
	"github.com/danmuck/bridgectl/internal/protocol"
	"github.com/holiman/uint256"
)

// RetryParams restates a failed callback. Every field must match what the
// dispatcher committed to when the callback failed.
type RetryParams struct {
	SrcEndpoint uint16
	SrcAddress  []byte
	Nonce       uint64
	From        []byte
	To          account.Address
	Amount      *uint256.Int
	Payload     []byte
}

func (p RetryParams) key() FailedKey {
	return FailedKey{Src: p.SrcEndpoint, SrcAddress: bytes.Clone(p.SrcAddress), Nonce: p.Nonce}
}

// Retry replays a failed callback exactly once. The record is removed before
// escrow is released. The hook runs without a gas cap; if it fails the whole
// retry is undone, the record is restored, and the failure is returned
// wrapped in ErrRetryCallback.
func (b *Bridge) Retry(ctx context.Context, p RetryParams) (err error) {
	ctx, unlock, err := b.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	defer func() {
		observability.RecordRetry(b.cfg.Endpoint, err == nil)
	}()

	if p.Amount == nil {
		p.Amount = new(uint256.Int)
	}
	if len(p.From) > protocol.MaxFieldLen {
		return fmt.Errorf("%w: from is %d bytes", protocol.ErrFieldTooLong, len(p.From))
	}
	key := p.key()
	hash := CommitmentHash(p.From, p.To, p.Amount, p.Payload)
	led := b.cfg.Ledger
	snap := led.Snapshot()
	if err := b.failed.Take(key, hash); err != nil {
		led.DiscardSnapshot(snap)
		return err
	}

	abort := func(cause error) error {
		if rerr := led.RevertToSnapshot(snap); rerr != nil {
			b.log.Error().Err(rerr).Msg("retry revert failed")
		}
		if perr := b.failed.Put(key, hash); perr != nil {
			b.log.Error().Err(perr).Uint64("nonce", key.Nonce).Msg("failed message not restored")
		}
		return cause
	}

	recv, ok := b.cfg.Receivers.Lookup(p.To)
	if !ok {
		return abort(fmt.Errorf("%w: %s", ErrNotCallable, p.To))
	}
	call := Call{
		Src:        key.Src,
		SrcAddress: key.SrcAddress,
		Nonce:      key.Nonce,
		From:       bytes.Clone(p.From),
		To:         p.To,
		Amount:     p.Amount.Clone(),
		Payload:    bytes.Clone(p.Payload),
		Gas:        UnlimitedGas(),
		Ledger:     led,
	}
	if err := b.release(ctx, call); err != nil {
		return abort(fmt.Errorf("bridge: %w", err))
	}
	if err := b.runHook(ctx, recv, call); err != nil {
		return abort(fmt.Errorf("%w: %w", ErrRetryCallback, err))
	}
	led.DiscardSnapshot(snap)
	b.clearCredited(key)

	b.log.Info().
		Uint16("src", key.Src).
		Uint64("nonce", key.Nonce).
		Stringer("hash", hash).
		Msg("retry succeeded")
	b.emit(RetryMessageSuccess{Src: key.Src, SrcAddress: key.SrcAddress, Nonce: key.Nonce, Hash: hash})
	return nil
}

// RecoverEscrow releases escrow that has no retry path, credited by callback
// packets with an invalid or non-callable receiver. It cannot touch escrow
// that backs a pending failed record.
func (b *Bridge) RecoverEscrow(ctx context.Context, to account.Address, amount *uint256.Int) error {
	ctx, unlock, err := b.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if amount == nil || amount.IsZero() {
		return ErrAmountTooSmall
	}
	if to.IsZero() {
		return fmt.Errorf("%w: recover target is zero", account.ErrInvalidAddress)
	}
	if err := b.failed.SubStuck(amount); err != nil {
		return err
	}
	if _, err := b.cfg.Ledger.Transfer(ctx, b.cfg.Address, to, amount); err != nil {
		if aerr := b.failed.AddStuck(amount); aerr != nil {
			b.log.Error().Err(aerr).Msg("stuck escrow not restored")
		}
		return fmt.Errorf("bridge: recover escrow: %w", err)
	}
	b.log.Warn().Stringer("to", to).Str("amount", amount.Dec()).Msg("escrow recovered")
	b.emit(EscrowRecovered{To: to, Amount: amount.Clone()})
	return nil
}
