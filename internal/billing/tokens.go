package billing

import (
	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
)

// TokenCounter must be deterministic for identical input.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts with the cl100k_base encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter loads cl100k_base. The encoding is fetched on first use, so
// when it cannot be loaded the byte-length approximation is returned instead.
func NewTokenCounter() TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		log.Warn().Err(err).Msg("tiktoken encoding unavailable, approximating token counts")
		return ApproxCounter{}
	}
	return &TiktokenCounter{enc: enc}
}

func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// ApproxCounter assumes four bytes per token, rounding up.
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int {
	return (len(text) + 3) / 4
}
