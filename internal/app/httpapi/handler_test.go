package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	app "github.com/cryptozy/earnd/internal/app"
	"github.com/cryptozy/earnd/internal/app/services/withdraw"
)

type stubProcessor struct {
	err error
}

func (s *stubProcessor) Send(context.Context, int64, string, string) (withdraw.PayoutReceipt, error) {
	if s.err != nil {
		return withdraw.PayoutReceipt{}, s.err
	}
	return withdraw.PayoutReceipt{TxHash: "tx-abc"}, nil
}

func newTestAPI(t *testing.T, proc withdraw.Processor) (http.Handler, *app.Application) {
	t.Helper()
	if proc == nil {
		proc = &stubProcessor{}
	}
	application, err := app.New(app.Stores{}, app.Options{
		SessionSigningKey: []byte("test-signing-key"),
		Processor:         proc,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		require.NoError(t, application.Stop(ctx))
	})
	return NewHandler(application), application
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			decoded = nil
		}
	}
	return rec, decoded
}

func registerAccount(t *testing.T, h http.Handler) string {
	t.Helper()
	rec, body := doJSON(t, h, http.MethodPost, "/accounts", "", map[string]string{"username": "miner"})
	require.Equal(t, http.StatusCreated, rec.Code)
	token, ok := body["token"].(string)
	require.True(t, ok)
	require.NotEmpty(t, token)
	return token
}

func TestHealthz(t *testing.T) {
	h, _ := newTestAPI(t, nil)
	rec, body := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body["status"])
}

func TestCreateAccountValidation(t *testing.T) {
	h, _ := newTestAPI(t, nil)
	rec, _ := doJSON(t, h, http.MethodPost, "/accounts", "", map[string]string{"username": "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	h, _ := newTestAPI(t, nil)
	rec, _ := doJSON(t, h, http.MethodGet, "/profile", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = doJSON(t, h, http.MethodGet, "/profile", "forged-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEarnEndpoint(t *testing.T) {
	h, _ := newTestAPI(t, nil)
	token := registerAccount(t, h)

	rec, body := doJSON(t, h, http.MethodPost, "/earn/ad", token, map[string]any{"amount": 25})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(25), body["balance_satoshi"])
	require.Equal(t, float64(1), body["ads_watched"])
	require.Equal(t, float64(10), body["xp"])

	rec, _ = doJSON(t, h, http.MethodPost, "/earn/ad", token, map[string]any{"amount": 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, h, http.MethodPost, "/earn/poker", token, map[string]any{"amount": 10})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActivitiesEndpoint(t *testing.T) {
	h, _ := newTestAPI(t, nil)
	token := registerAccount(t, h)

	rec, _ := doJSON(t, h, http.MethodGet, "/activities", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "[]\n", rec.Body.String())

	_, _ = doJSON(t, h, http.MethodPost, "/earn/offer", token, map[string]any{"amount": 100})
	rec, _ = doJSON(t, h, http.MethodGet, "/activities", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var acts []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acts))
	require.Len(t, acts, 1)
	require.Equal(t, "offer", acts[0]["type"])
}

func TestMiningToggleEndpoint(t *testing.T) {
	h, _ := newTestAPI(t, nil)
	token := registerAccount(t, h)

	rec, body := doJSON(t, h, http.MethodPost, "/mining/toggle", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["active"])

	rec, body = doJSON(t, h, http.MethodGet, "/mining", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["active"])

	rec, body = doJSON(t, h, http.MethodPost, "/mining/toggle", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, body["active"])
}

func TestWithdrawMethodsListing(t *testing.T) {
	h, _ := newTestAPI(t, nil)
	rec, _ := doJSON(t, h, http.MethodGet, "/withdraw/methods", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var methods []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &methods))
	require.Len(t, methods, 6)
}

func TestWithdrawEndpointSuccess(t *testing.T) {
	h, _ := newTestAPI(t, nil)
	token := registerAccount(t, h)

	// Fund the account first.
	rec, _ := doJSON(t, h, http.MethodPost, "/earn/offer", token, map[string]any{"amount": 100000})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := doJSON(t, h, http.MethodPost, "/withdraw", token, map[string]any{
		"amount":  50000,
		"address": "bc1qexampleaddress",
		"method":  "btc",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["success"])
	require.Equal(t, "tx-abc", body["tx_hash"])
	require.Equal(t, float64(49000), body["net_amount"])
	require.Equal(t, float64(1000), body["fee"])
	require.Equal(t, "BTC", body["currency"])
	require.Equal(t, float64(50000), body["new_balance"])

	rec, _ = doJSON(t, h, http.MethodGet, "/withdrawals", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var recs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	require.Equal(t, "completed", recs[0]["status"])
}

func TestWithdrawEndpointErrorMapping(t *testing.T) {
	h, _ := newTestAPI(t, nil)
	token := registerAccount(t, h)

	rec, body := doJSON(t, h, http.MethodPost, "/withdraw", token, map[string]any{
		"amount":  4000,
		"address": "bc1qexampleaddress",
		"method":  "faucetpay",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, false, body["success"])
}

func TestWithdrawEndpointProcessorRejection(t *testing.T) {
	proc := &stubProcessor{err: &withdraw.ProcessorError{Code: 456, Message: "the faucet has insufficient balance for this payout"}}
	h, _ := newTestAPI(t, proc)
	token := registerAccount(t, h)

	rec, _ := doJSON(t, h, http.MethodPost, "/earn/offer", token, map[string]any{"amount": 100000})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := doJSON(t, h, http.MethodPost, "/withdraw", token, map[string]any{
		"amount":  60000,
		"address": "bc1qexampleaddress",
		"method":  "btc",
	})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, false, body["success"])
	require.Equal(t, float64(456), body["code"])
	require.Equal(t, "the faucet has insufficient balance for this payout", body["error"])

	// Balance untouched.
	rec, profile := doJSON(t, h, http.MethodGet, "/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(100000), profile["balance_satoshi"])
}

func TestReferralBonusOnSignup(t *testing.T) {
	h, _ := newTestAPI(t, nil)

	rec, body := doJSON(t, h, http.MethodPost, "/accounts", "", map[string]string{"username": "referrer"})
	require.Equal(t, http.StatusCreated, rec.Code)
	referrerToken := body["token"].(string)
	referrerProfile := body["profile"].(map[string]any)
	referrerID := referrerProfile["id"].(string)

	rec, _ = doJSON(t, h, http.MethodPost, "/accounts", "", map[string]string{
		"username":    "referred",
		"referred_by": referrerID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, profile := doJSON(t, h, http.MethodGet, "/profile", referrerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(referralBonus), profile["balance_satoshi"])
	require.Equal(t, float64(1), profile["referral_count"])
}

func TestUnknownRouteReturns404(t *testing.T) {
	h, _ := newTestAPI(t, nil)
	rec, _ := doJSON(t, h, http.MethodGet, fmt.Sprintf("/nope-%d", time.Now().Unix()), "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
