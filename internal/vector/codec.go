package vector

import (
	"fmt"
	"math"
	"strings"

	"github.com/pgvector/pgvector-go"
)

// Encode converts an in-memory vector into the persisted pgvector form.
func Encode(values []float64) (pgvector.Vector, error) {
	if len(values) == 0 {
		return pgvector.Vector{}, fmt.Errorf("vector is empty")
	}

	out := make([]float32, len(values))
	for i, value := range values {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return pgvector.Vector{}, fmt.Errorf("vector has non-finite value at index %d", i)
		}
		out[i] = float32(value)
	}
	return pgvector.NewVector(out), nil
}

// Decode converts a persisted vector into float64 values for similarity math.
func Decode(v pgvector.Vector) []float64 {
	raw := v.Slice()
	if len(raw) == 0 {
		return nil
	}
	out := make([]float64, len(raw))
	for i, value := range raw {
		out[i] = float64(value)
	}
	return out
}

// DecodeNullable is Decode for a column that may be NULL.
func DecodeNullable(v *pgvector.Vector) []float64 {
	if v == nil {
		return nil
	}
	return Decode(*v)
}

// Parse reads the serialized array form ("[0.1,0.2]"), which is both the pgvector text
// representation and a JSON number array. Blank input and "[]" decode to nil.
func Parse(text string) ([]float64, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || trimmed == "[]" {
		return nil, nil
	}

	var v pgvector.Vector
	if err := v.Parse(strings.ReplaceAll(trimmed, " ", "")); err != nil {
		return nil, fmt.Errorf("parse vector: %w", err)
	}
	return Decode(v), nil
}

// Format renders values in the serialized array form.
func Format(values []float64) (string, error) {
	v, err := Encode(values)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}
