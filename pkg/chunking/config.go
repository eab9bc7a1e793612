package chunking

import (
	"errors"
	"fmt"
	"math"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ErrInvalidChunkConfig is returned for a non-positive budget or an overlap
// ratio outside [0, 1).
var ErrInvalidChunkConfig = errors.New("invalid chunk config")

const (
	DefaultBudget       = 800
	DefaultOverlapRatio = 0.22
)

// Config controls how documents are split.
type Config struct {
	// Budget is the maximum number of tokens per chunk, overlap included.
	Budget int `json:"budget" mapstructure:"budget"`
	// OverlapRatio is the share of Budget repeated from the previous chunk.
	OverlapRatio float64 `json:"overlap_ratio" mapstructure:"overlap_ratio"`
}

// DefaultConfig returns the default chunking parameters.
func DefaultConfig() Config {
	return Config{Budget: DefaultBudget, OverlapRatio: DefaultOverlapRatio}
}

// Validate checks the parameters. Errors wrap ErrInvalidChunkConfig.
func (c Config) Validate() error {
	if math.IsNaN(c.OverlapRatio) {
		return fmt.Errorf("%w: overlap_ratio: must be a number", ErrInvalidChunkConfig)
	}
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Budget, validation.Required, validation.Min(1)),
		validation.Field(&c.OverlapRatio, validation.Min(0.0), validation.Max(1.0).Exclusive()),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidChunkConfig, err)
	}
	return nil
}

// OverlapTokens is the configured overlap: floor(OverlapRatio × Budget).
func (c Config) OverlapTokens() int {
	return int(math.Floor(c.OverlapRatio * float64(c.Budget)))
}
