package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/strawberry/sitebuilder-go/internal/audit"
	"github.com/strawberry/sitebuilder-go/internal/billing"
	"github.com/strawberry/sitebuilder-go/internal/config"
	apperrors "github.com/strawberry/sitebuilder-go/internal/errors"
	"github.com/strawberry/sitebuilder-go/internal/model"
	"github.com/strawberry/sitebuilder-go/internal/repository"
	"github.com/strawberry/sitebuilder-go/internal/util"
)

type PriceSource interface {
	Price(ctx context.Context, mint string) (decimal.Decimal, error)
}

type TokenBalances interface {
	TokenBalance(ctx context.Context, owner string) (decimal.Decimal, error)
}

// TokenSigner signs payloads for the payment backend; middleware.WebhookAuth implements it.
type TokenSigner interface {
	Sign(claims jwt.Claims) (string, error)
}

// TxRunner runs fn inside one database transaction; *database.DB implements it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

type WalletOptions struct {
	Mint              string
	Treasury          string
	PaymentBackendURL string
	MinSignupUSD      decimal.Decimal
	MinDepositUSD     decimal.Decimal
}

type WalletService struct {
	opts     WalletOptions
	tx       TxRunner
	users    repository.UserRepository
	wallets  repository.WalletRepository
	deposits repository.DepositRepository
	metrics  repository.TokenMetricsRepository
	ledger   *billing.Ledger
	price    PriceSource
	balances TokenBalances
	signer   TokenSigner
	client   *http.Client
	now      func() time.Time
}

func NewWalletService(
	opts WalletOptions,
	tx TxRunner,
	users repository.UserRepository,
	wallets repository.WalletRepository,
	deposits repository.DepositRepository,
	metrics repository.TokenMetricsRepository,
	ledger *billing.Ledger,
	price PriceSource,
	balances TokenBalances,
	signer TokenSigner,
) *WalletService {
	return &WalletService{
		opts:     opts,
		tx:       tx,
		users:    users,
		wallets:  wallets,
		deposits: deposits,
		metrics:  metrics,
		ledger:   ledger,
		price:    price,
		balances: balances,
		signer:   signer,
		client:   &http.Client{Timeout: config.PaymentForwardTimeout},
		now:      time.Now,
	}
}

func (s *WalletService) WithHTTPClient(c *http.Client) *WalletService {
	s.client = c
	return s
}

type TokenConfig struct {
	PriceUSD         *decimal.Decimal    `json:"token_price_usd"`
	MinSignupUSD     decimal.Decimal     `json:"min_signup_usd"`
	MinSignupTokens  *string             `json:"min_signup_tokens"`
	MinDepositUSD    decimal.Decimal     `json:"min_deposit_usd"`
	MinDepositTokens *string             `json:"min_deposit_tokens"`
	Metrics          *model.TokenMetrics `json:"metrics"`
	Mint             string              `json:"mint_address"`
	Treasury         string              `json:"treasury"`
	PriceSource      string              `json:"price_source"`
}

// TokenConfig describes how to pay. Available is false when no price could
// be found; the config is still returned so clients can show the rest.
func (s *WalletService) TokenConfig(ctx context.Context) (cfg TokenConfig, available bool) {
	cfg = TokenConfig{
		MinSignupUSD:  s.opts.MinSignupUSD,
		MinDepositUSD: s.opts.MinDepositUSD,
		Mint:          s.opts.Mint,
		Treasury:      s.opts.Treasury,
		PriceSource:   "dexscreener_unavailable",
	}
	if s.opts.Mint == "" {
		return cfg, false
	}
	if m, err := s.metrics.Find(ctx, s.opts.Mint); err == nil {
		cfg.Metrics = m
	}

	price, err := s.price.Price(ctx, s.opts.Mint)
	if err != nil || !price.IsPositive() {
		log.Warn().Err(err).Str("mint", s.opts.Mint).Msg("token price unavailable")
		return cfg, false
	}
	cfg.PriceUSD = &price
	cfg.PriceSource = "dexscreener_live"
	cfg.MinSignupTokens = tokensFor(s.opts.MinSignupUSD, price)
	cfg.MinDepositTokens = tokensFor(s.opts.MinDepositUSD, price)
	return cfg, true
}

func tokensFor(usd, price decimal.Decimal) *string {
	v := usd.Div(price).StringFixed(6)
	return &v
}

type PriceReport struct {
	Mint      string              `json:"mint"`
	PriceUSD  *decimal.Decimal    `json:"price_usd"`
	DBMetrics *model.TokenMetrics `json:"db_metrics"`
}

func (s *WalletService) PriceReport(ctx context.Context) PriceReport {
	report := PriceReport{Mint: s.opts.Mint}
	if s.opts.Mint == "" {
		return report
	}
	if price, err := s.price.Price(ctx, s.opts.Mint); err == nil {
		report.PriceUSD = &price
	}
	if m, err := s.metrics.Find(ctx, s.opts.Mint); err == nil {
		report.DBMetrics = m
	}
	return report
}

func (s *WalletService) WalletBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if !util.IsBase58Address(address) {
		return decimal.Zero, apperrors.InvalidInput("wallet_address", "not a valid address")
	}
	tokens, err := s.balances.TokenBalance(ctx, address)
	if err != nil {
		return decimal.Zero, apperrors.External("solana rpc", err)
	}
	return tokens, nil
}

type SignupCheck struct {
	Valid         bool            `json:"valid"`
	BalanceTokens decimal.Decimal `json:"balance_tokens"`
	USDValue      decimal.Decimal `json:"usd_value"`
}

// ValidateSignupBalance checks that a wallet holds at least the signup
// minimum worth of tokens at the live price.
func (s *WalletService) ValidateSignupBalance(ctx context.Context, address string) (*SignupCheck, error) {
	tokens, err := s.WalletBalance(ctx, address)
	if err != nil {
		return nil, err
	}
	price, err := s.price.Price(ctx, s.opts.Mint)
	if err != nil || !price.IsPositive() {
		return nil, apperrors.Unavailable("Token price unavailable. Try again later.")
	}
	usd := tokens.Mul(price)
	return &SignupCheck{
		Valid:         usd.GreaterThanOrEqual(s.opts.MinSignupUSD),
		BalanceTokens: tokens,
		USDValue:      usd,
	}, nil
}

type DepositRequest struct {
	SignatureTx   string `json:"signature_tx"`
	WalletAddress string `json:"wallet_address"`
	AmountTokens  string `json:"amount_tokens"`
	AmountUSD     string `json:"amount_usd"`
	MintAddress   string `json:"mint_address"`
}

type depositClaims struct {
	SignatureTx     string `json:"signature_tx"`
	WalletConnected string `json:"wallet_connected"`
	WalletRecipient string `json:"wallet_recipient"`
	AmountTokens    string `json:"amount_tokens"`
	AmountUSD       string `json:"amount_usd"`
	MintAddress     string `json:"mint_address"`
	Timestamp       int64  `json:"timestamp"`
	jwt.RegisteredClaims
}

type DepositResult struct {
	ForwardStatus   int             `json:"forward_status"`
	PaymentResponse json.RawMessage `json:"payment_response"`
	Balance         decimal.Decimal `json:"balance"`
}

// Deposit links the wallet to the user and hands the transfer to the
// payment backend for verification. The credit itself arrives later through
// the recharge webhook.
func (s *WalletService) Deposit(ctx context.Context, userID string, req DepositRequest) (*DepositResult, error) {
	mint := req.MintAddress
	if mint == "" {
		mint = s.opts.Mint
	}
	if req.SignatureTx == "" || req.WalletAddress == "" || s.opts.Treasury == "" || mint == "" {
		return nil, apperrors.MissingRequired("signature_tx, wallet_address and token configuration")
	}
	if !util.IsBase58Address(req.WalletAddress) {
		return nil, apperrors.InvalidInput("wallet_address", "not a valid address")
	}

	if err := s.linkWallet(ctx, userID, req.WalletAddress); err != nil {
		return nil, err
	}

	now := s.now()
	claims := depositClaims{
		SignatureTx:      req.SignatureTx,
		WalletConnected:  req.WalletAddress,
		WalletRecipient:  s.opts.Treasury,
		AmountTokens:     req.AmountTokens,
		AmountUSD:        req.AmountUSD,
		MintAddress:      mint,
		Timestamp:        now.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(now)},
	}
	token, err := s.signer.Sign(claims)
	if err != nil {
		return nil, apperrors.Unavailable("Payments are not configured")
	}

	payload, err := json.Marshal(struct {
		depositClaims
		Token string `json:"token"`
	}{claims, token})
	if err != nil {
		return nil, err
	}

	status, body, err := s.forward(ctx, payload)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("payment backend unreachable")
		return nil, apperrors.External("payment backend", err)
	}

	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		balance = decimal.Zero
	}
	return &DepositResult{ForwardStatus: status, PaymentResponse: body, Balance: balance}, nil
}

func (s *WalletService) linkWallet(ctx context.Context, userID, address string) error {
	existing, err := s.wallets.FindByAddress(ctx, address)
	if err != nil {
		return apperrors.Database(err)
	}
	if existing != nil {
		if existing.UserID != userID {
			return apperrors.Conflict("Wallet already linked to another user")
		}
		return nil
	}
	w, err := s.wallets.Link(ctx, userID, address)
	if err != nil {
		return apperrors.Database(err)
	}
	if w.UserID != userID {
		return apperrors.Conflict("Wallet already linked to another user")
	}
	audit.Log(ctx, audit.Event{
		Type:    audit.EventWalletLink,
		UserID:  userID,
		Details: map[string]interface{}{"wallet": address},
	})
	return nil
}

func (s *WalletService) forward(ctx context.Context, payload []byte) (int, json.RawMessage, error) {
	url := strings.TrimRight(s.opts.PaymentBackendURL, "/") + "/api/payment/verify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	if !json.Valid(raw) {
		raw, _ = json.Marshal(map[string]string{"raw": string(raw)})
	}
	return resp.StatusCode, raw, nil
}

// CreditUser applies a recharge reported for a user id.
func (s *WalletService) CreditUser(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if userID == "" || !amount.IsPositive() {
		return decimal.Zero, apperrors.MissingRequired("user_id and amount_usd")
	}
	balance, err := s.ledger.Credit(ctx, userID, amount, "recharge webhook")
	if err != nil {
		if errors.Is(err, billing.ErrUnknownUser) {
			return decimal.Zero, apperrors.NotFound("User")
		}
		return decimal.Zero, apperrors.Database(err)
	}
	return balance, nil
}

type WalletRecharge struct {
	Wallet       string
	AmountUSD    decimal.Decimal
	AmountTokens decimal.Decimal
	SignatureTx  string
}

type RechargeResult struct {
	UserID  string          `json:"user_id"`
	Balance decimal.Decimal `json:"new_balance"`
}

// CreditWallet credits the owner of the wallet once per transaction
// signature. The deposit row and the balance change commit together, so a
// replayed signature never credits twice.
func (s *WalletService) CreditWallet(ctx context.Context, req WalletRecharge) (*RechargeResult, error) {
	if req.Wallet == "" || req.SignatureTx == "" || !req.AmountUSD.IsPositive() {
		return nil, apperrors.MissingRequired("wallet, amount and signature_tx")
	}

	var result *RechargeResult
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		w, err := s.wallets.WithTx(tx).FindByAddress(ctx, req.Wallet)
		if err != nil {
			return apperrors.Database(err)
		}
		if w == nil {
			return apperrors.NotFound("Wallet")
		}

		d, err := s.deposits.WithTx(tx).Create(ctx, model.CreateDepositParams{
			UserID:        w.UserID,
			WalletAddress: req.Wallet,
			AmountTokens:  req.AmountTokens,
			AmountUSD:     req.AmountUSD,
			SignatureTx:   req.SignatureTx,
		})
		if err != nil {
			return apperrors.Database(err)
		}
		if d == nil {
			return apperrors.Conflict("Deposit already processed")
		}

		balance, err := s.ledger.WithStore(s.users.WithTx(tx)).Credit(ctx, w.UserID, req.AmountUSD, fmt.Sprintf("deposit %s", req.SignatureTx))
		if err != nil {
			return apperrors.Database(err)
		}
		result = &RechargeResult{UserID: w.UserID, Balance: balance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

