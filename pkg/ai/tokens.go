package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const tokenEncoding = "o200k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

// CountTokens returns the number of o200k_base tokens in text.
func CountTokens(text string) (int, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding(tokenEncoding)
	})
	if encErr != nil {
		return 0, encErr
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// EstimateTokens is CountTokens with a four-characters-per-token fallback
// for when the encoding cannot be loaded.
func EstimateTokens(text string) int {
	n, err := CountTokens(text)
	if err != nil {
		return (len(text) + 3) / 4
	}
	return n
}
