package bridge

import (
	"errors"

	"github.com/danmuck/bridgectl/internal/account"
	"github.com/danmuck/bridgectl/internal/decimals"
	"github.com/danmuck/bridgectl/internal/ledger"
	"github.com/danmuck/bridgectl/internal/protocol"
	"github.com/danmuck/bridgectl/internal/transport"
)

// Categories returned by Category.
var (
	ErrConfiguration = errors.New("bridge: configuration error")
	ErrCodec         = errors.New("bridge: codec error")
	ErrAccounting    = errors.New("bridge: accounting error")
	ErrRetry         = errors.New("bridge: retry error")
)

var (
	ErrInvalidConfig         = errors.New("bridge: invalid config")
	ErrAdapterParamsNotEmpty = errors.New("bridge: adapter params must be empty")
	ErrMinGasNotSet          = errors.New("bridge: minimum destination gas not set")
	ErrGasTooLow             = errors.New("bridge: adapter params gas too low")
	ErrUntrustedRemote       = errors.New("bridge: destination is not a trusted remote")
	ErrPayloadTooLarge       = errors.New("bridge: payload size too large")

	ErrUntrustedSource   = errors.New("bridge: untrusted source")
	ErrUnknownPacketType = errors.New("bridge: unknown packet type")

	ErrAmountTooSmall   = errors.New("bridge: amount too small")
	ErrRecoverTooLarge  = errors.New("bridge: recover amount exceeds stuck escrow")
	ErrReentrantCall    = errors.New("bridge: reentrant call")
	ErrOutOfGas         = errors.New("bridge: out of gas")
	ErrNoFailedMessage  = errors.New("bridge: no failed message")
	ErrHashMismatch     = errors.New("bridge: invalid payload hash")
	ErrRetryCallback    = errors.New("bridge: retry callback failed")
	ErrNotCallable      = errors.New("bridge: receiver is not callable")
	ErrEmptyReceiverKey = errors.New("bridge: receiver address is zero")
)

var categories = []struct {
	category error
	members  []error
}{
	{
		category: ErrConfiguration,
		members: []error{
			ErrInvalidConfig,
			ErrAdapterParamsNotEmpty,
			ErrMinGasNotSet,
			ErrGasTooLow,
			ErrUntrustedRemote,
			ErrPayloadTooLarge,
			protocol.ErrInvalidAdapterParams,
			protocol.ErrFieldTooLong,
			decimals.ErrInvalidRate,
			account.ErrInvalidAddress,
			transport.ErrInsufficientFee,
			transport.ErrUnknownEndpoint,
			transport.ErrAltTokenNotPriced,
		},
	},
	{
		category: ErrCodec,
		members: []error{
			ErrUntrustedSource,
			ErrUnknownPacketType,
			protocol.ErrInvalidPacketKind,
			protocol.ErrTruncatedPacket,
			protocol.ErrTrailingBytes,
		},
	},
	{
		category: ErrAccounting,
		members: []error{
			ErrAmountTooSmall,
			ErrRecoverTooLarge,
			decimals.ErrOverflow,
			ledger.ErrInsufficientBalance,
			ledger.ErrOutboundOverflow,
		},
	},
	{
		category: ErrRetry,
		members: []error{
			ErrNoFailedMessage,
			ErrHashMismatch,
			ErrRetryCallback,
			ErrNotCallable,
		},
	},
}

// Category classifies err into one of the category sentinels, or returns nil
// when err belongs to none of them.
func Category(err error) error {
	if err == nil {
		return nil
	}
	for _, c := range categories {
		if errors.Is(err, c.category) {
			return c.category
		}
		for _, m := range c.members {
			if errors.Is(err, m) {
				return c.category
			}
		}
	}
	return nil
}
