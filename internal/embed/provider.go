// Package embed wraps the external embedding models behind one Provider interface.
package embed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrEmptyEmbedding is returned when a provider answers without a usable vector.
var ErrEmptyEmbedding = errors.New("embedding provider returned no vector")

// Provider turns text into a fixed-length vector.
type Provider interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Input builds the embedding text for an article: title, then body, falling back to
// the AI summary when the body is empty.
func Input(title, body, summary string) string {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if body == "" {
		body = strings.TrimSpace(summary)
	}
	switch {
	case title == "" && body == "":
		return ""
	case body == "":
		return title
	case title == "":
		return body
	default:
		return title + "\n\n" + body
	}
}

func checkVector(values []float64) error {
	if len(values) == 0 {
		return ErrEmptyEmbedding
	}
	for i, value := range values {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf("embedding has non-finite value at index %d", i)
		}
	}
	return nil
}
