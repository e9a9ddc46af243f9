package withdraw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestFaucetPay(t *testing.T, handler http.HandlerFunc) *FaucetPay {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	fp := NewFaucetPay("test-api-key", nil)
	fp.endpoint = srv.URL
	fp.client = srv.Client()
	return fp
}

func TestFaucetPaySendSuccess(t *testing.T) {
	var form map[string]string
	fp := newTestFaucetPay(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = map[string]string{
			"api_key":  r.PostFormValue("api_key"),
			"amount":   r.PostFormValue("amount"),
			"to":       r.PostFormValue("to"),
			"currency": r.PostFormValue("currency"),
		}
		w.Write([]byte(`{"status":200,"payout_id":981273,"payout_user_hash":"abcdef"}`))
	})

	receipt, err := fp.Send(context.Background(), 49000, "bc1qexampleaddress", "BTC")
	require.NoError(t, err)
	require.Equal(t, "981273", receipt.TxHash)
	require.Equal(t, "test-api-key", form["api_key"])
	require.Equal(t, "49000", form["amount"])
	require.Equal(t, "bc1qexampleaddress", form["to"])
	require.Equal(t, "BTC", form["currency"])
}

func TestFaucetPaySendFallsBackToUserHash(t *testing.T) {
	fp := newTestFaucetPay(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":200,"payout_user_hash":"userhash9"}`))
	})

	receipt, err := fp.Send(context.Background(), 1000, "bc1qexampleaddress", "BTC")
	require.NoError(t, err)
	require.Equal(t, "userhash9", receipt.TxHash)
}

func TestFaucetPaySendSynthesizesHash(t *testing.T) {
	fp := newTestFaucetPay(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":200}`))
	})

	receipt, err := fp.Send(context.Background(), 1000, "bc1qexampleaddress", "BTC")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(receipt.TxHash, "FP-"))
}

func TestFaucetPaySendKnownRejectionCodes(t *testing.T) {
	cases := []struct {
		status  string
		code    int
		message string
	}{
		{`{"status":456}`, 456, "the faucet has insufficient balance for this payout"},
		{`{"status":402}`, 402, "the destination address is invalid"},
		{`{"status":405}`, 405, "the amount is below the payout service minimum"},
	}
	for _, tc := range cases {
		body := tc.status
		fp := newTestFaucetPay(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		})

		_, err := fp.Send(context.Background(), 1000, "bc1qexampleaddress", "BTC")
		var procErr *ProcessorError
		require.ErrorAs(t, err, &procErr, body)
		require.Equal(t, tc.code, procErr.Code)
		require.Equal(t, tc.message, procErr.Message)
	}
}

func TestFaucetPaySendUnknownRejectionUsesProviderMessage(t *testing.T) {
	fp := newTestFaucetPay(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":500,"message":"maintenance window"}`))
	})

	_, err := fp.Send(context.Background(), 1000, "bc1qexampleaddress", "BTC")
	var procErr *ProcessorError
	require.ErrorAs(t, err, &procErr)
	require.Equal(t, 500, procErr.Code)
	require.Equal(t, "maintenance window", procErr.Message)
}
