package withdraw

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/cryptozy/earnd/pkg/logger"
)

const faucetPayEndpoint = "https://faucetpay.io/api/v1/send"

// faucetPayErrors maps provider rejection codes to user-facing messages.
var faucetPayErrors = map[int64]string{
	456: "the faucet has insufficient balance for this payout",
	401: "payout service credentials are invalid",
	402: "the destination address is invalid",
	403: "the address is not registered with the payout service",
	404: "the currency is not supported by the payout service",
	405: "the amount is below the payout service minimum",
}

// FaucetPay sends payouts through the FaucetPay API.
type FaucetPay struct {
	apiKey   string
	endpoint string
	client   *http.Client
	logger   *logger.Logger
}

var _ Processor = (*FaucetPay)(nil)

// NewFaucetPay creates a FaucetPay processor.
func NewFaucetPay(apiKey string, log *logger.Logger) *FaucetPay {
	if log == nil {
		log = logger.NewDefault("faucetpay")
	}
	return &FaucetPay{
		apiKey:   apiKey,
		endpoint: faucetPayEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   log,
	}
}

// Send submits a payout. Amounts are satoshi.
func (f *FaucetPay) Send(ctx context.Context, amount int64, address, currency string) (PayoutReceipt, error) {
	form := url.Values{}
	form.Set("api_key", f.apiKey)
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("to", address)
	form.Set("currency", currency)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return PayoutReceipt{}, fmt.Errorf("build payout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.client.Do(req)
	if err != nil {
		return PayoutReceipt{}, fmt.Errorf("send payout: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PayoutReceipt{}, fmt.Errorf("read payout response: %w", err)
	}

	parsed := gjson.ParseBytes(body)
	status := parsed.Get("status").Int()
	if status != 200 {
		message, ok := faucetPayErrors[status]
		if !ok {
			message = parsed.Get("message").String()
			if message == "" {
				message = "payout provider returned an unknown error"
			}
		}
		f.logger.WithField("code", status).WithField("currency", currency).
			Warn("payout rejected by provider")
		return PayoutReceipt{}, &ProcessorError{Code: int(status), Message: message}
	}

	// payout_id is numeric in some responses and a string in others.
	txHash := parsed.Get("payout_id").String()
	if txHash == "" {
		txHash = parsed.Get("payout_user_hash").String()
	}
	if txHash == "" {
		txHash = fmt.Sprintf("FP-%d", time.Now().UnixNano())
	}
	return PayoutReceipt{TxHash: txHash}, nil
}
