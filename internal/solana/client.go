package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/strawberry/sitebuilder-go/internal/config"
	"github.com/strawberry/sitebuilder-go/internal/util"
)

const TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

var (
	ErrNotConfigured  = errors.New("solana rpc not configured")
	ErrInvalidAddress = errors.New("invalid base58 address")
)

// Client reads SPL token balances over plain JSON-RPC.
type Client struct {
	rpcURL string
	mint   string
	client *http.Client
}

func NewClient(rpcURL, mint string) *Client {
	return &Client{
		rpcURL: rpcURL,
		mint:   mint,
		client: &http.Client{Timeout: config.SolanaRPCTimeout},
	}
}

// TokenBalance sums the configured mint across every token account of owner.
func (c *Client) TokenBalance(ctx context.Context, owner string) (decimal.Decimal, error) {
	if c.rpcURL == "" || c.mint == "" {
		return decimal.Zero, ErrNotConfigured
	}
	if !util.IsBase58Address(owner) || !util.IsBase58Address(c.mint) {
		return decimal.Zero, ErrInvalidAddress
	}

	result, err := c.accountsByOwner(ctx, owner, map[string]string{"mint": c.mint})
	if err != nil {
		log.Debug().Err(err).Str("owner", owner).Msg("mint filter lookup failed, retrying by program id")
		result, err = c.accountsByOwner(ctx, owner, map[string]string{"programId": TokenProgramID})
		if err != nil {
			return decimal.Zero, err
		}
	}

	total := decimal.Zero
	for _, acc := range result.Get("value").Array() {
		info := acc.Get("account.data.parsed.info")
		if info.Get("mint").String() != c.mint {
			continue
		}
		amount, err := decimal.NewFromString(info.Get("tokenAmount.amount").String())
		if err != nil {
			continue
		}
		decimals := int32(info.Get("tokenAmount.decimals").Int())
		total = total.Add(amount.Shift(-decimals))
	}
	return total, nil
}

func (c *Client) accountsByOwner(ctx context.Context, owner string, filter map[string]string) (gjson.Result, error) {
	return c.call(ctx, "getTokenAccountsByOwner", []any{owner, filter, map[string]string{"encoding": "jsonParsed"}})
}

func (c *Client) call(ctx context.Context, method string, params []any) (gjson.Result, error) {
	payload, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return gjson.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: read response: %w", method, err)
	}

	result := gjson.GetBytes(body, "result")
	if !result.Exists() {
		return gjson.Result{}, fmt.Errorf("%s: %s", method, gjson.GetBytes(body, "error.message").String())
	}
	return result, nil
}
