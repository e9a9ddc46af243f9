package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	app "github.com/cryptozy/earnd/internal/app"
	"github.com/cryptozy/earnd/internal/app/domain/ledger"
	"github.com/cryptozy/earnd/internal/app/domain/withdrawal"
	"github.com/cryptozy/earnd/internal/app/metrics"
	ledgersvc "github.com/cryptozy/earnd/internal/app/services/ledger"
	"github.com/cryptozy/earnd/internal/app/services/withdraw"
)

// referralBonus is credited to the referrer when a referred account signs up.
const referralBonus = 500

type contextKey string

const accountKey contextKey = "account"

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a router exposing the REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/accounts", h.createAccount).Methods(http.MethodPost)
	r.HandleFunc("/withdraw/methods", h.withdrawMethods).Methods(http.MethodGet)

	authed := r.PathPrefix("/").Subrouter()
	authed.Use(h.authenticate)
	authed.HandleFunc("/profile", h.profile).Methods(http.MethodGet)
	authed.HandleFunc("/activities", h.activities).Methods(http.MethodGet)
	authed.HandleFunc("/earn/{kind}", h.earn).Methods(http.MethodPost)
	authed.HandleFunc("/mining", h.miningState).Methods(http.MethodGet)
	authed.HandleFunc("/mining/toggle", h.miningToggle).Methods(http.MethodPost)
	authed.HandleFunc("/withdraw", h.submitWithdrawal).Methods(http.MethodPost)
	authed.HandleFunc("/withdrawals", h.listWithdrawals).Methods(http.MethodGet)

	return metrics.InstrumentHandler(r)
}

// authenticate resolves the bearer token into an account id.
func (h *handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, err := h.app.Sessions.Resolve(bearerToken(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, errors.New("invalid or missing session token"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountKey, accountID)))
	})
}

func accountID(r *http.Request) string {
	id, _ := r.Context().Value(accountKey).(string)
	return id
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username   string `json:"username"`
		ReferredBy string `json:"referred_by"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.Username) == "" {
		writeError(w, http.StatusBadRequest, errors.New("username is required"))
		return
	}

	profile, token, err := h.app.Register(r.Context(), payload.Username, payload.ReferredBy, referralBonus)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"profile": profile,
		"token":   token,
	})
}

func (h *handler) profile(w http.ResponseWriter, r *http.Request) {
	sess, err := h.app.Ledger.Open(r.Context(), accountID(r))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *handler) activities(w http.ResponseWriter, r *http.Request) {
	sess, err := h.app.Ledger.Open(r.Context(), accountID(r))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	acts := sess.Activities()
	if acts == nil {
		acts = []ledger.Activity{}
	}
	writeJSON(w, http.StatusOK, acts)
}

var earnKinds = map[string]ledger.ActivityKind{
	"ad":    ledger.KindAd,
	"link":  ledger.KindLink,
	"offer": ledger.KindOffer,
}

func (h *handler) earn(w http.ResponseWriter, r *http.Request) {
	kind, ok := earnKinds[mux.Vars(r)["kind"]]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown earn kind %q", mux.Vars(r)["kind"]))
		return
	}

	var payload struct {
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Description == "" {
		payload.Description = defaultDescription(kind)
	}

	sess, err := h.app.Ledger.Open(r.Context(), accountID(r))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	snapshot, err := sess.CreditActivity(kind, payload.Amount, payload.Description)
	if err != nil {
		if errors.Is(err, ledgersvc.ErrInvalidAmount) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	metrics.RecordAccrual(string(kind), payload.Amount)
	writeJSON(w, http.StatusOK, snapshot)
}

func defaultDescription(kind ledger.ActivityKind) string {
	switch kind {
	case ledger.KindAd:
		return "Watched an ad"
	case ledger.KindLink:
		return "Visited a shortlink"
	case ledger.KindOffer:
		return "Completed an offer"
	default:
		return "Reward"
	}
}

func (h *handler) miningState(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.app.Miner(r.Context(), accountID(r))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.State())
}

func (h *handler) miningToggle(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.app.Miner(r.Context(), accountID(r))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	state, err := ctrl.Toggle(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *handler) withdrawMethods(w http.ResponseWriter, r *http.Request) {
	type methodView struct {
		ID       string `json:"id"`
		Currency string `json:"currency"`
		Fee      int64  `json:"fee"`
		Minimum  int64  `json:"minimum"`
	}
	methods := withdrawal.Methods()
	out := make([]methodView, 0, len(methods))
	for _, m := range methods {
		out = append(out, methodView{ID: m.ID, Currency: m.Currency, Fee: m.Fee, Minimum: m.Minimum})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) submitWithdrawal(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Amount  int64  `json:"amount"`
		Address string `json:"address"`
		Method  string `json:"method"`
		Proof   string `json:"proof"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.app.Withdraw.Submit(r.Context(), withdraw.Request{
		Token:   bearerToken(r),
		Method:  payload.Method,
		Amount:  payload.Amount,
		Address: payload.Address,
		Proof:   payload.Proof,
	})
	if err != nil {
		metrics.RecordWithdrawal("failed")
		writeWithdrawError(w, err)
		return
	}
	metrics.RecordWithdrawal("completed")
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     result.Message,
		"tx_hash":     result.TxHash,
		"amount":      result.Amount,
		"fee":         result.Fee,
		"net_amount":  result.NetAmount,
		"currency":    result.Currency,
		"new_balance": result.NewBalance,
	})
}

func writeWithdrawError(w http.ResponseWriter, err error) {
	var procErr *withdraw.ProcessorError
	if errors.As(err, &procErr) {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"success": false,
			"error":   procErr.Message,
			"code":    procErr.Code,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, withdraw.ErrInvalidInput),
		errors.Is(err, withdraw.ErrUnknownMethod),
		errors.Is(err, withdraw.ErrBelowMinimum),
		errors.Is(err, withdraw.ErrAmountTooSmall),
		errors.Is(err, withdraw.ErrInsufficientBalance):
		status = http.StatusBadRequest
	case errors.Is(err, withdraw.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, withdraw.ErrProofRequired), errors.Is(err, withdraw.ErrProofFailed):
		status = http.StatusForbidden
	case errors.Is(err, withdraw.ErrThrottled):
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

func (h *handler) listWithdrawals(w http.ResponseWriter, r *http.Request) {
	recs, err := h.app.Withdraw.History(r.Context(), bearerToken(r))
	if err != nil {
		writeWithdrawError(w, err)
		return
	}
	if recs == nil {
		recs = []withdrawal.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
