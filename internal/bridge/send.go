package bridge

import (
	"bytes"
	"context"
	"fmt"

	"github.com/danmuck/bridgectl/internal/account"
	"github.com/danmuck/bridgectl/internal/observability"
	"github.com/danmuck/bridgectl/internal/protocol"
	"github.com/danmuck/bridgectl/internal/transport"
	"github.com/holiman/uint256"
)

type SendParams struct {
	From          account.Address
	DstEndpoint   uint16
	To            []byte
	Amount        *uint256.Int
	RefundAddress account.Address
	// AltFeeToken pays the transport fee in an alternate token when non-zero.
	AltFeeToken   account.Address
	AdapterParams []byte
	NativeFee     *uint256.Int
}

type SendAndCallParams struct {
	SendParams
	// Caller is the direct caller, encoded as the packet's from field. It
	// defaults to From when zero.
	Caller        account.Address
	Payload       []byte
	DstGasForCall uint64
}

func (p SendAndCallParams) caller() account.Address {
	if p.Caller.IsZero() {
		return p.From
	}
	return p.Caller
}

// EstimateParams describes a prospective send for fee estimation.
type EstimateParams struct {
	DstEndpoint   uint16
	To            []byte
	Amount        *uint256.Int
	UseAltToken   bool
	AdapterParams []byte

	// Set for SEND_AND_CALL estimates.
	From          account.Address
	Payload       []byte
	DstGasForCall uint64
}

// Send debits the dust-free part of Amount from From and dispatches a SEND
// packet. It returns the amount actually debited.
func (b *Bridge) Send(ctx context.Context, p SendParams) (*uint256.Int, error) {
	return b.send(ctx, protocol.PTSend, p, 0, func(amountSD uint64) ([]byte, error) {
		return protocol.EncodeSend(protocol.SendPacket{To: p.To, AmountSD: amountSD})
	})
}

// SendAndCall is Send for a packet that also invokes the receiver's hook on
// the destination. The packet's from field is the direct caller while the
// debit is taken from From.
func (b *Bridge) SendAndCall(ctx context.Context, p SendAndCallParams) (*uint256.Int, error) {
	from := p.caller()
	return b.send(ctx, protocol.PTSendAndCall, p.SendParams, p.DstGasForCall, func(amountSD uint64) ([]byte, error) {
		return protocol.EncodeSendAndCall(protocol.SendAndCallPacket{
			From:          from.Bytes(),
			To:            p.To,
			AmountSD:      amountSD,
			Payload:       p.Payload,
			DstGasForCall: p.DstGasForCall,
		})
	})
}

func (b *Bridge) send(
	ctx context.Context,
	pt protocol.PacketType,
	p SendParams,
	extraGas uint64,
	build func(amountSD uint64) ([]byte, error),
) (*uint256.Int, error) {
	ctx, unlock, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	params, err := b.checkAdapterParams(p.DstEndpoint, pt, p.AdapterParams, extraGas)
	if err != nil {
		return nil, err
	}
	if _, ok := b.cfg.Policy.trustedRemote(p.DstEndpoint); !ok {
		return nil, fmt.Errorf("%w: %d", ErrUntrustedRemote, p.DstEndpoint)
	}
	if p.Amount == nil {
		return nil, ErrAmountTooSmall
	}
	clean, dust := b.cfg.Converter.RemoveDust(p.Amount)
	if clean.IsZero() {
		return nil, fmt.Errorf("%w: %s is below one shared unit", ErrAmountTooSmall, p.Amount.Dec())
	}

	led := b.cfg.Ledger
	snap := led.Snapshot()
	fail := func(err error) (*uint256.Int, error) {
		if rerr := led.RevertToSnapshot(snap); rerr != nil {
			b.log.Error().Err(rerr).Msg("send revert failed")
		}
		return nil, err
	}

	actual, err := led.Debit(ctx, p.From, clean)
	if err != nil {
		return fail(fmt.Errorf("bridge: debit %s: %w", p.From, err))
	}
	if actual.IsZero() {
		return fail(ErrAmountTooSmall)
	}
	amountSD, err := b.cfg.Converter.ToShared(actual)
	if err != nil {
		return fail(err)
	}
	packet, err := build(amountSD)
	if err != nil {
		return fail(err)
	}
	if limit := b.cfg.Policy.payloadLimit(p.DstEndpoint); len(packet) > limit {
		return fail(fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(packet), limit))
	}

	err = b.cfg.Transport.Dispatch(ctx, transport.Dispatch{
		SrcEndpoint:   b.cfg.Endpoint,
		DstEndpoint:   p.DstEndpoint,
		SrcAddress:    b.cfg.Address.Bytes(),
		Packet:        packet,
		RefundAddress: p.RefundAddress,
		AltFeeToken:   p.AltFeeToken,
		AdapterParams: params,
		NativeFee:     p.NativeFee,
	})
	if err != nil {
		return fail(fmt.Errorf("bridge: dispatch: %w", err))
	}
	led.DiscardSnapshot(snap)

	observability.RecordPacketSent(b.cfg.Endpoint, p.DstEndpoint, pt.String())
	b.log.Debug().
		Uint16("dst", p.DstEndpoint).
		Str("kind", pt.String()).
		Str("amount", actual.Dec()).
		Str("dust", dust.Dec()).
		Msg("packet sent")
	b.emit(SendToEndpoint{Dst: p.DstEndpoint, From: p.From, To: bytes.Clone(p.To), Amount: actual.Clone()})
	return actual, nil
}

// checkAdapterParams applies the custom adapter params policy and returns the
// params handed to the transport.
func (b *Bridge) checkAdapterParams(dst uint16, pt protocol.PacketType, params []byte, extraGas uint64) ([]byte, error) {
	minGas, hasMin := b.cfg.Policy.minGas(dst, pt)
	if !b.cfg.Policy.UseCustomAdapterParams {
		if len(params) != 0 {
			return nil, ErrAdapterParamsNotEmpty
		}
		if !hasMin {
			return nil, nil
		}
		return protocol.EncodeAdapterParamsV1(minGas + extraGas), nil
	}
	if !hasMin {
		return nil, fmt.Errorf("%w: dst %d %s", ErrMinGasNotSet, dst, pt)
	}
	decoded, err := protocol.DecodeAdapterParams(params)
	if err != nil {
		return nil, err
	}
	need := new(uint256.Int).Add(uint256.NewInt(minGas), uint256.NewInt(extraGas))
	if decoded.Gas.Lt(need) {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrGasTooLow, decoded.Gas.Dec(), need.Dec())
	}
	return params, nil
}

func (b *Bridge) EstimateSendFee(ctx context.Context, p EstimateParams) (transport.Fee, error) {
	return b.estimate(ctx, p, func(amountSD uint64) ([]byte, error) {
		return protocol.EncodeSend(protocol.SendPacket{To: p.To, AmountSD: amountSD})
	})
}

func (b *Bridge) EstimateSendAndCallFee(ctx context.Context, p EstimateParams) (transport.Fee, error) {
	return b.estimate(ctx, p, func(amountSD uint64) ([]byte, error) {
		return protocol.EncodeSendAndCall(protocol.SendAndCallPacket{
			From:          p.From.Bytes(),
			To:            p.To,
			AmountSD:      amountSD,
			Payload:       p.Payload,
			DstGasForCall: p.DstGasForCall,
		})
	})
}

func (b *Bridge) estimate(ctx context.Context, p EstimateParams, build func(amountSD uint64) ([]byte, error)) (transport.Fee, error) {
	amount := p.Amount
	if amount == nil {
		amount = new(uint256.Int)
	}
	amountSD, err := b.cfg.Converter.ToShared(amount)
	if err != nil {
		return transport.Fee{}, err
	}
	packet, err := build(amountSD)
	if err != nil {
		return transport.Fee{}, err
	}
	return b.cfg.Transport.EstimateFee(ctx, transport.FeeQuery{
		SrcEndpoint:   b.cfg.Endpoint,
		DstEndpoint:   p.DstEndpoint,
		SrcAddress:    b.cfg.Address.Bytes(),
		Packet:        packet,
		PayInAltToken: p.UseAltToken,
		AdapterParams: p.AdapterParams,
	})
}
