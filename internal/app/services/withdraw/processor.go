package withdraw

import "context"

// PayoutReceipt is the provider's confirmation of a sent payout.
type PayoutReceipt struct {
	TxHash string
}

// Processor sends funds to an external address. Implementations must return
// a *ProcessorError for provider-side rejections so callers can distinguish
// them from transport failures.
type Processor interface {
	Send(ctx context.Context, amount int64, address, currency string) (PayoutReceipt, error)
}
