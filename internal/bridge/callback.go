package bridge

import (
	"context"
	"fmt"
	"strings"
)

// DefaultMaxReasonBytes caps the failure reason kept for a failed callback.
const DefaultMaxReasonBytes = 150

// Gas is a cooperative execution budget. Hooks charge their work with Consume
// and must stop once it returns ErrOutOfGas. A hook that ignores exhaustion
// still fails: the bridge checks the meter after the hook returns.
type Gas struct {
	limit     uint64
	used      uint64
	unlimited bool
	exhausted bool
}

func NewGas(limit uint64) *Gas {
	return &Gas{limit: limit}
}

// UnlimitedGas is the meter handed to hooks during a retry.
func UnlimitedGas() *Gas {
	return &Gas{unlimited: true}
}

func (g *Gas) Consume(n uint64) error {
	if g.unlimited {
		g.used += n
		return nil
	}
	if g.exhausted || n > g.limit-g.used {
		g.used = g.limit
		g.exhausted = true
		return ErrOutOfGas
	}
	g.used += n
	return nil
}

func (g *Gas) Used() uint64 {
	return g.used
}

// Remaining is the unspent budget, or zero for an unlimited meter.
func (g *Gas) Remaining() uint64 {
	if g.unlimited {
		return 0
	}
	return g.limit - g.used
}

func (g *Gas) Exhausted() bool {
	return g.exhausted
}

// CallbackError is a captured hook failure.
type CallbackError struct {
	Reason  string
	GasUsed uint64
	cause   error
}

func (e *CallbackError) Error() string {
	return "bridge: callback failed: " + e.Reason
}

func (e *CallbackError) Unwrap() error {
	return e.cause
}

type panicError struct {
	value any
}

func (p panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

// callHook runs the hook and converts a panic into an error.
func callHook(ctx context.Context, recv Receiver, call Call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{value: r}
		}
	}()
	return recv.OnReceived(ctx, call)
}

// runHook marks the bridge as inside a hook for the duration of the call.
// enter rejects every operation while the mark is set, whatever context the
// hook passes along.
func (b *Bridge) runHook(ctx context.Context, recv Receiver, call Call) error {
	b.inHook.Store(true)
	defer b.inHook.Store(false)
	return callHook(ctx, recv, call)
}

// invoke releases escrow to the receiver and runs its hook under the packet's
// gas budget. Any failure reverts every ledger change made since the release
// and comes back as a *CallbackError; it never propagates further.
func (b *Bridge) invoke(ctx context.Context, recv Receiver, call Call, gasLimit uint64) (uint64, *CallbackError) {
	led := b.cfg.Ledger
	snap := led.Snapshot()
	call.Gas = NewGas(gasLimit)
	call.Ledger = led

	err := b.release(ctx, call)
	if err == nil {
		err = b.runHook(ctx, recv, call)
	}
	if err == nil && call.Gas.Exhausted() {
		err = ErrOutOfGas
	}
	if err != nil {
		if rerr := led.RevertToSnapshot(snap); rerr != nil {
			b.log.Error().Err(rerr).Int("snapshot", snap).Msg("callback revert failed")
		}
		return call.Gas.Used(), &CallbackError{
			Reason:  truncateReason(err.Error(), b.cfg.MaxReasonBytes),
			GasUsed: call.Gas.Used(),
			cause:   err,
		}
	}
	led.DiscardSnapshot(snap)
	return call.Gas.Used(), nil
}

func (b *Bridge) release(ctx context.Context, call Call) error {
	if _, err := call.Ledger.Transfer(ctx, b.cfg.Address, call.To, call.Amount); err != nil {
		return fmt.Errorf("release escrow: %w", err)
	}
	return nil
}

// truncateReason cuts s to at most limit bytes without splitting a rune.
func truncateReason(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return strings.ToValidUTF8(s[:limit], "")
}
