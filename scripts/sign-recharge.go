package main

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/strawberry/sitebuilder-go/internal/middleware"
)

// Prints a bearer token for POST /api/webhooks/recharge signed with JWT_SECRET.
func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: go run scripts/sign-recharge.go <user-id> <amount-usd>\n")
		os.Exit(1)
	}

	_ = godotenv.Load()

	amount, err := decimal.NewFromString(os.Args[2])
	if err != nil || !amount.IsPositive() {
		fmt.Fprintf(os.Stderr, "Error: amount must be a positive number\n")
		os.Exit(1)
	}

	token, err := middleware.NewWebhookAuth(os.Getenv("JWT_SECRET")).Sign(middleware.WebhookClaims{
		UserID:    os.Args[1],
		AmountUSD: amount,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(10 * time.Minute)),
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
