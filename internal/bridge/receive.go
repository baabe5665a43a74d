package bridge

import (
	"bytes"
	"context"
	"fmt"

	"github.com/danmuck/bridgectl/internal/observability"
	"github.com/danmuck/bridgectl/internal/protocol"
	"github.com/danmuck/bridgectl/internal/transport"
	"github.com/holiman/uint256"
)

var _ transport.Inbound = (*Bridge)(nil)

// Receive applies one delivered packet. A returned error means nothing was
// applied and the transport keeps the packet for redelivery. Callback failures
// are not errors here: they become failed records.
func (b *Bridge) Receive(ctx context.Context, d transport.Delivery) error {
	ctx, unlock, err := b.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if !b.isTrustedSource(d.SrcEndpoint, d.SrcAddress) {
		observability.RecordPacketReceived(b.cfg.Endpoint, d.SrcEndpoint, "unknown", "untrusted")
		return fmt.Errorf("%w: endpoint %d address %x", ErrUntrustedSource, d.SrcEndpoint, d.SrcAddress)
	}
	pt, err := protocol.PeekType(d.Packet)
	if err != nil {
		observability.RecordPacketReceived(b.cfg.Endpoint, d.SrcEndpoint, "unknown", "codec")
		return err
	}

	switch pt {
	case protocol.PTSend:
		err = b.receiveSend(ctx, d)
	case protocol.PTSendAndCall:
		err = b.receiveSendAndCall(ctx, d)
	default:
		err = fmt.Errorf("%w: %d", ErrUnknownPacketType, uint8(pt))
	}
	result := "ok"
	if err != nil {
		result = "error"
		b.log.Warn().
			Err(err).
			Uint16("src", d.SrcEndpoint).
			Uint64("nonce", d.Nonce).
			Str("kind", pt.String()).
			Msg("receive rejected")
	}
	observability.RecordPacketReceived(b.cfg.Endpoint, d.SrcEndpoint, pt.String(), result)
	return err
}

func (b *Bridge) receiveSend(ctx context.Context, d transport.Delivery) error {
	p, err := protocol.DecodeSend(d.Packet)
	if err != nil {
		return err
	}
	to, valid := b.resolver.Resolve(p.To)
	amount := b.cfg.Converter.ToLocal(p.AmountSD)

	actual, err := b.cfg.Ledger.Credit(ctx, to, amount)
	if err != nil {
		return fmt.Errorf("bridge: credit %s: %w", to, err)
	}
	if !valid {
		b.emit(InvalidReceiver{Src: d.SrcEndpoint, Nonce: d.Nonce, Raw: bytes.Clone(p.To)})
	}
	b.emit(ReceiveFromEndpoint{Src: d.SrcEndpoint, To: to, Amount: actual})
	return nil
}

func (b *Bridge) receiveSendAndCall(ctx context.Context, d transport.Delivery) error {
	p, err := protocol.DecodeSendAndCall(d.Packet)
	if err != nil {
		return err
	}
	key := FailedKey{Src: d.SrcEndpoint, SrcAddress: bytes.Clone(d.SrcAddress), Nonce: d.Nonce}
	to, valid := b.resolver.Resolve(p.To)
	amount := b.cfg.Converter.ToLocal(p.AmountSD)

	// A redelivered packet whose escrow credit already landed must not be
	// credited twice; it continues straight to the callback stage.
	credited, err := b.failed.Credited(key)
	if err != nil {
		return fmt.Errorf("bridge: credited marker: %w", err)
	}
	if !credited {
		led := b.cfg.Ledger
		snap := led.Snapshot()
		actual, err := led.Credit(ctx, b.cfg.Address, amount)
		if err != nil {
			_ = led.RevertToSnapshot(snap)
			return fmt.Errorf("bridge: credit escrow: %w", err)
		}
		if err := b.failed.MarkCredited(key); err != nil {
			_ = led.RevertToSnapshot(snap)
			return fmt.Errorf("bridge: credited marker: %w", err)
		}
		led.DiscardSnapshot(snap)
		amount = actual
	}
	b.emit(ReceiveFromEndpoint{Src: d.SrcEndpoint, To: to, Amount: amount.Clone()})

	if !valid {
		if !credited {
			b.markStuck(amount)
		}
		b.clearCredited(key)
		b.emit(InvalidReceiver{Src: d.SrcEndpoint, Nonce: d.Nonce, Raw: bytes.Clone(p.To)})
		return nil
	}
	recv, ok := b.cfg.Receivers.Lookup(to)
	if !ok {
		if !credited {
			b.markStuck(amount)
		}
		b.clearCredited(key)
		b.emit(NonCallableReceiver{Src: d.SrcEndpoint, Nonce: d.Nonce, To: to})
		return nil
	}

	call := Call{
		Src:        d.SrcEndpoint,
		SrcAddress: key.SrcAddress,
		Nonce:      d.Nonce,
		From:       p.From,
		To:         to,
		Amount:     amount,
		Payload:    p.Payload,
	}
	hash := CommitmentHash(p.From, to, amount, p.Payload)
	gasUsed, cerr := b.invoke(ctx, recv, call, p.DstGasForCall)
	if cerr == nil {
		b.clearCredited(key)
		observability.RecordCallback(b.cfg.Endpoint, "success", gasUsed)
		b.emit(CallReceivedSuccess{Src: d.SrcEndpoint, SrcAddress: key.SrcAddress, Nonce: d.Nonce, Hash: hash})
		return nil
	}

	observability.RecordCallback(b.cfg.Endpoint, "failed", cerr.GasUsed)
	if err := b.failed.Put(key, hash); err != nil {
		return fmt.Errorf("bridge: store failed message: %w", err)
	}
	b.log.Warn().
		Uint16("src", d.SrcEndpoint).
		Uint64("nonce", d.Nonce).
		Uint64("gas_used", cerr.GasUsed).
		Str("reason", cerr.Reason).
		Msg("callback failed")
	b.emit(MessageFailed{
		Src:        d.SrcEndpoint,
		SrcAddress: key.SrcAddress,
		Nonce:      d.Nonce,
		Hash:       hash,
		Reason:     cerr.Reason,
	})
	return nil
}

// clearCredited drops the credited marker once the packet is settled. A
// failed callback keeps its marker until Retry succeeds.
func (b *Bridge) clearCredited(key FailedKey) {
	if err := b.failed.UnmarkCredited(key); err != nil {
		b.log.Error().Err(err).Uint16("src", key.Src).Uint64("nonce", key.Nonce).Msg("credited marker not cleared")
	}
}

// markStuck records escrow that has no retry path so RecoverEscrow can
// release it later.
func (b *Bridge) markStuck(amount *uint256.Int) {
	if err := b.failed.AddStuck(amount); err != nil {
		b.log.Error().Err(err).Str("amount", amount.Dec()).Msg("stuck escrow not recorded")
	}
}
