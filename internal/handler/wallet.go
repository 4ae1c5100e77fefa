package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/strawberry/sitebuilder-go/internal/audit"
	apperrors "github.com/strawberry/sitebuilder-go/internal/errors"
	"github.com/strawberry/sitebuilder-go/internal/middleware"
	"github.com/strawberry/sitebuilder-go/internal/service"
)

type WalletHandler struct {
	wallets  *service.WalletService
	balances service.BalanceReader
	webhooks *middleware.WebhookAuth
}

func NewWalletHandler(wallets *service.WalletService, balances service.BalanceReader, webhooks *middleware.WebhookAuth) *WalletHandler {
	return &WalletHandler{wallets: wallets, balances: balances, webhooks: webhooks}
}

// RegisterRoutes adds the public token and price lookups.
func (h *WalletHandler) RegisterRoutes(r chi.Router) {
	r.Get("/token_config", h.TokenConfig)
	r.Get("/spl_price", h.SPLPrice)
	r.Get("/wallet/{address}/balance", h.WalletBalance)
	r.Post("/validate_signup_balance", h.ValidateSignupBalance)
}

// RegisterAccountRoutes expects the user session middleware in front.
func (h *WalletHandler) RegisterAccountRoutes(r chi.Router) {
	r.Get("/me/balance", h.MyBalance)
	r.Post("/deposit", h.Deposit)
}

// WebhookRoutes are called by the payment backend.
func (h *WalletHandler) WebhookRoutes() chi.Router {
	r := chi.NewRouter()
	r.With(h.webhooks.Handler).Post("/recharge", h.Recharge)
	r.Post("/recharge_balance", h.RechargeBalance)
	return r
}

func (h *WalletHandler) TokenConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.wallets.TokenConfig(r.Context())
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, cfg)
}

func (h *WalletHandler) SPLPrice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.wallets.PriceReport(r.Context()))
}

func (h *WalletHandler) WalletBalance(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	tokens, err := h.wallets.WalletBalance(r.Context(), address)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"wallet":         address,
		"balance_tokens": tokens,
	})
}

func (h *WalletHandler) ValidateSignupBalance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WalletAddress string `json:"wallet_address"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.WalletAddress == "" {
		writeError(w, apperrors.MissingRequired("wallet_address"))
		return
	}

	check, err := h.wallets.ValidateSignupBalance(r.Context(), req.WalletAddress)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (h *WalletHandler) MyBalance(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	balance, err := h.balances.Balance(r.Context(), user.ID)
	if err != nil {
		writeError(w, apperrors.Database(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req service.DepositRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.wallets.Deposit(r.Context(), user.ID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Recharge credits the user named in the bearer token.
func (h *WalletHandler) Recharge(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetWebhookClaims(r.Context())
	if claims == nil || claims.UserID == "" || !claims.AmountUSD.IsPositive() {
		writeError(w, apperrors.MissingRequired("user_id and amount_usd"))
		return
	}

	balance, err := h.wallets.CreditUser(r.Context(), claims.UserID, claims.AmountUSD)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "new_balance": balance})
}

// RechargeBalance credits the owner of a wallet. The token travels in the
// body; body fields win over the same claims inside the token.
func (h *WalletHandler) RechargeBalance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Wallet       string          `json:"wallet"`
		Amount       decimal.Decimal `json:"amount"`
		AmountTokens decimal.Decimal `json:"amount_tokens"`
		SignatureTx  string          `json:"signature_tx"`
		Token        string          `json:"jwt"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, apperrors.Unauthorized("Missing jwt"))
		return
	}

	claims, err := h.webhooks.Parse(req.Token)
	if err != nil {
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventWebhookRejected,
			Details: map[string]interface{}{"reason": err.Error()},
		})
		writeError(w, apperrors.InvalidToken("Invalid jwt"))
		return
	}
	if req.Wallet == "" {
		req.Wallet = claims.Wallet
	}
	if req.Amount.IsZero() {
		req.Amount = claims.AmountUSD
	}
	if req.SignatureTx == "" {
		req.SignatureTx = claims.SignatureTx
	}

	result, err := h.wallets.CreditWallet(r.Context(), service.WalletRecharge{
		Wallet:       req.Wallet,
		AmountUSD:    req.Amount,
		AmountTokens: req.AmountTokens,
		SignatureTx:  req.SignatureTx,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*service.RechargeResult
	}{true, result})
}
