package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"bakehouse/backend/internal/domain"
	"bakehouse/backend/internal/service"
	"bakehouse/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	logger        *zap.Logger
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		logger:        logger,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

const (
	admin       = domain.RoleAdmin
	storekeeper = domain.RoleStorekeeper
	baker       = domain.RoleBaker
	driver      = domain.RoleDriver
	cashier     = domain.RoleCashier
)

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	anyone := []string{admin, storekeeper, baker, driver, cashier}

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("GET /api/v1/staff", a.requireAuth(a.handleListStaff, anyone...))
	mux.HandleFunc("POST /api/v1/staff", a.requireAuth(a.handleCreateStaff, admin))

	mux.HandleFunc("GET /api/v1/products", a.requireAuth(a.handleListProducts, anyone...))
	mux.HandleFunc("POST /api/v1/products", a.requireAuth(a.handleCreateProduct, admin))
	mux.HandleFunc("GET /api/v1/products/{id}", a.requireAuth(a.handleGetProduct, anyone...))
	mux.HandleFunc("PATCH /api/v1/products/{id}", a.requireAuth(a.handleUpdateProduct, admin))

	mux.HandleFunc("GET /api/v1/ingredients", a.requireAuth(a.handleListIngredients, anyone...))
	mux.HandleFunc("POST /api/v1/ingredients", a.requireAuth(a.handleCreateIngredient, admin, storekeeper))
	mux.HandleFunc("POST /api/v1/ingredients/{id}/receipts", a.requireAuth(a.handleReceiveSupply, admin, storekeeper))
	mux.HandleFunc("GET /api/v1/recipes", a.requireAuth(a.handleListRecipes, anyone...))
	mux.HandleFunc("POST /api/v1/recipes", a.requireAuth(a.handleCreateRecipe, admin, baker))
	mux.HandleFunc("GET /api/v1/suppliers", a.requireAuth(a.handleListSuppliers, admin, storekeeper))
	mux.HandleFunc("POST /api/v1/suppliers", a.requireAuth(a.handleCreateSupplier, admin, storekeeper))
	mux.HandleFunc("GET /api/v1/customers", a.requireAuth(a.handleListCustomers, anyone...))
	mux.HandleFunc("POST /api/v1/customers", a.requireAuth(a.handleCreateCustomer, admin, driver, cashier))
	mux.HandleFunc("GET /api/v1/customers/{id}", a.requireAuth(a.handleGetCustomer, anyone...))
	mux.HandleFunc("POST /api/v1/customers/{id}/payments", a.requireAuth(a.handleDebtPayment, admin, driver, cashier))

	mux.HandleFunc("GET /api/v1/stock", a.requireAuth(a.handleListStock, anyone...))
	mux.HandleFunc("POST /api/v1/stock/debit", a.requireAuth(a.handleDebitStock, admin, storekeeper))
	mux.HandleFunc("POST /api/v1/stock/credit", a.requireAuth(a.handleCreditStock, admin, storekeeper))
	mux.HandleFunc("GET /api/v1/waste", a.requireAuth(a.handleListWaste, admin, storekeeper, baker))
	mux.HandleFunc("POST /api/v1/waste", a.requireAuth(a.handleReportWaste, anyone...))

	mux.HandleFunc("GET /api/v1/transfers", a.requireAuth(a.handleListTransfers, anyone...))
	mux.HandleFunc("POST /api/v1/transfers", a.requireAuth(a.handleCreateTransfer, admin, storekeeper, baker, driver))
	mux.HandleFunc("GET /api/v1/transfers/{id}", a.requireAuth(a.handleGetTransfer, anyone...))
	mux.HandleFunc("POST /api/v1/transfers/{id}/acknowledge", a.requireAuth(a.handleAcknowledgeTransfer, anyone...))
	mux.HandleFunc("POST /api/v1/transfers/{id}/cancel", a.requireAuth(a.handleCancelTransfer, anyone...))

	mux.HandleFunc("GET /api/v1/batches", a.requireAuth(a.handleListBatches, admin, storekeeper, baker))
	mux.HandleFunc("POST /api/v1/batches", a.requireAuth(a.handleStartBatch, admin, baker))
	mux.HandleFunc("GET /api/v1/batches/{id}", a.requireAuth(a.handleGetBatch, admin, storekeeper, baker))
	mux.HandleFunc("POST /api/v1/batches/{id}/approve", a.requireAuth(a.handleApproveBatch, admin, storekeeper))
	mux.HandleFunc("POST /api/v1/batches/{id}/decline", a.requireAuth(a.handleDeclineBatch, admin, storekeeper))
	mux.HandleFunc("POST /api/v1/batches/{id}/cancel", a.requireAuth(a.handleCancelBatch, admin, baker))
	mux.HandleFunc("POST /api/v1/batches/{id}/complete", a.requireAuth(a.handleCompleteBatch, admin, baker))

	mux.HandleFunc("GET /api/v1/runs/{id}/orders", a.requireAuth(a.handleListRunOrders, admin, driver, cashier))
	mux.HandleFunc("POST /api/v1/runs/{id}/sales", a.requireAuth(a.handleSell, admin, driver, cashier))
	mux.HandleFunc("POST /api/v1/runs/{id}/returns", a.requireAuth(a.handleReturnRunStock, admin, driver, cashier))
	mux.HandleFunc("POST /api/v1/runs/{id}/complete", a.requireAuth(a.handleCompleteRun, admin, driver, cashier))
	mux.HandleFunc("POST /api/v1/counter-sales", a.requireAuth(a.handleCounterSale, admin, cashier, driver))

	mux.HandleFunc("GET /api/v1/payment-confirmations", a.requireAuth(a.handleListConfirmations, admin, cashier))
	mux.HandleFunc("POST /api/v1/payment-confirmations/{id}", a.requireAuth(a.handleConfirmPayment, admin))
	mux.HandleFunc("GET /api/v1/daily-sales", a.requireAuth(a.handleDailySales, admin))
	mux.HandleFunc("GET /api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, admin))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

// actsFor reports whether the caller may act on behalf of owner. Admins may
// act for anyone and storekeepers for the warehouse.
func actsFor(r *http.Request, owner string) bool {
	actor, ok := service.ActorFromContext(r.Context())
	if !ok {
		return false
	}
	switch {
	case actor.Role == admin:
		return true
	case actor.Role == storekeeper && owner == domain.WarehouseOwner:
		return true
	default:
		return actor.Username == owner
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(startedAt)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type errorBody struct {
	Error  string         `json:"error"`
	Code   string         `json:"code"`
	Detail map[string]any `json:"detail,omitempty"`
}

// writeServiceError maps an engine error onto a status and a discriminated body.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	var short *store.InsufficientStockError
	switch {
	case errors.As(err, &short):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error: err.Error(),
			Code:  "insufficient_stock",
			Detail: map[string]any{
				"item_id":   short.ItemID,
				"item_name": short.ItemName,
				"requested": short.Requested.String(),
				"available": short.Available.String(),
				"missing":   short.Missing().String(),
			},
		})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, store.ErrAlreadyProcessed):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "already_processed"})
	case errors.Is(err, store.ErrNotPending):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "not_pending"})
	case errors.Is(err, store.ErrNotActive):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "not_active"})
	case errors.Is(err, store.ErrStockRemaining):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "stock_remaining"})
	case errors.Is(err, store.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "validation"})
	case errors.Is(err, store.ErrConflict):
		a.logger.Warn("transaction retries exhausted", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "concurrent update, retry the request", Code: "conflict"})
	default:
		a.logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies never carry the underlying error text.
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: codeForStatus(status)})
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
