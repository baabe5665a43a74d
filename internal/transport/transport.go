// Package transport carries encoded packets between bridge endpoints.
//
// The bridge depends only on the Transport and Inbound interfaces. Loopback is
// an in-process implementation that frames every packet on the wire format in
// internal/protocol/frame and delivers queued frames in nonce order.
package transport

import (
	"context"
	"errors"

	"github.com/danmuck/bridgectl/internal/account"
	"github.com/holiman/uint256"
)

var (
	ErrUnknownEndpoint   = errors.New("transport: unknown endpoint")
	ErrEndpointExists    = errors.New("transport: endpoint already registered")
	ErrInsufficientFee   = errors.New("transport: insufficient native fee")
	ErrNoStoredPayload   = errors.New("transport: no stored payload")
	ErrPayloadMismatch   = errors.New("transport: payload does not match stored payload")
	ErrDeliveryFailed    = errors.New("transport: delivery failed")
	ErrInvalidDispatch   = errors.New("transport: invalid dispatch")
	ErrAltTokenNotPriced = errors.New("transport: alt token fee not configured")
	// ErrRedeliveryInFlight means another redelivery of the same stored
	// payload has not finished yet.
	ErrRedeliveryInFlight = errors.New("transport: redelivery already in flight")
	// ErrCorruptFrame marks a queued frame that could not be decoded. It stays
	// stored and keeps its path blocked.
	ErrCorruptFrame = errors.New("transport: corrupt frame")
)

// FeeQuery asks what sending Packet would cost.
type FeeQuery struct {
	SrcEndpoint   uint16
	DstEndpoint   uint16
	SrcAddress    []byte
	Packet        []byte
	PayInAltToken bool
	AdapterParams []byte
}

// Fee is a quote in the native unit and, when requested, the alt fee token.
type Fee struct {
	Native   *uint256.Int
	AltToken *uint256.Int
}

// Dispatch is one outbound send request.
type Dispatch struct {
	SrcEndpoint   uint16
	DstEndpoint   uint16
	SrcAddress    []byte
	Packet        []byte
	RefundAddress account.Address
	AltFeeToken   account.Address
	AdapterParams []byte
	NativeFee     *uint256.Int
}

// Delivery is one packet handed to the destination endpoint.
type Delivery struct {
	SrcEndpoint uint16
	DstEndpoint uint16
	SrcAddress  []byte
	Nonce       uint64
	Packet      []byte
}

type Transport interface {
	EstimateFee(ctx context.Context, q FeeQuery) (Fee, error)
	Dispatch(ctx context.Context, d Dispatch) error
}

// Inbound is implemented by the bridge endpoint that consumes deliveries. A
// returned error means the packet was not applied and must be redelivered.
type Inbound interface {
	Receive(ctx context.Context, d Delivery) error
}

// InboundFunc adapts a function into an Inbound.
type InboundFunc func(ctx context.Context, d Delivery) error

func (f InboundFunc) Receive(ctx context.Context, d Delivery) error {
	return f(ctx, d)
}
