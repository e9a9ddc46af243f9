// Package withdrawal defines withdrawal records and the fixed payout method
// table shared by the settlement pipeline and the HTTP API.
package withdrawal

import (
	"strings"
	"time"
)

// Status of a withdrawal record. Completed and Failed are terminal; a retry
// is always a new record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is one withdrawal attempt, successful or not.
type Record struct {
	ID          string     `json:"id"`
	AccountID   string     `json:"account_id"`
	Method      string     `json:"method"`
	Amount      int64      `json:"amount"`
	Fee         int64      `json:"fee"`
	NetAmount   int64      `json:"net_amount"`
	Address     string     `json:"address"`
	Status      Status     `json:"status"`
	TxHash      string     `json:"tx_hash,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Method describes a payout route: the provider currency code, the flat fee
// absorbed from the requested amount, and the minimum request size.
type Method struct {
	ID       string
	Currency string
	Fee      int64
	Minimum  int64
}

// methods is the fixed payout method table, keyed by method id. Amounts are
// satoshi.
var methods = map[string]Method{
	"btc":       {ID: "btc", Currency: "BTC", Fee: 1000, Minimum: 50000},
	"ltc":       {ID: "ltc", Currency: "LTC", Fee: 200, Minimum: 20000},
	"doge":      {ID: "doge", Currency: "DOGE", Fee: 100, Minimum: 10000},
	"usdt":      {ID: "usdt", Currency: "USDT", Fee: 500, Minimum: 30000},
	"trx":       {ID: "trx", Currency: "TRX", Fee: 50, Minimum: 15000},
	"faucetpay": {ID: "faucetpay", Currency: "BTC", Fee: 0, Minimum: 5000},
}

// LookupMethod resolves a method id to its payout parameters.
func LookupMethod(id string) (Method, bool) {
	m, ok := methods[strings.ToLower(strings.TrimSpace(id))]
	return m, ok
}

// Methods returns the full method table for API listings.
func Methods() []Method {
	out := make([]Method, 0, len(methods))
	for _, m := range methods {
		out = append(out, m)
	}
	return out
}
