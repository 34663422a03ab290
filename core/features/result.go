// Package features implements the tempo, key and mood extractors. Each
// extractor always yields a usable value; failures are reported through
// Result instead of being propagated.
package features

import "fmt"

// Fallback values applied when an extractor cannot compute a result.
const (
	FallbackBPM = 120.0
	FallbackKey = "C major"
	NeutralMood = "neutral"
)

// Result carries an extractor's value and whether it is a fallback.
type Result[T any] struct {
	Value    T
	Fallback bool  // Value is the documented fallback, not a measurement
	Err      error // cause of the fallback, nil otherwise
}

func computed[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func fallback[T any](v T, err error) Result[T] {
	return Result[T]{Value: v, Fallback: true, Err: err}
}

// guard turns a panic inside an extractor into a fallback result.
func guard[T any](out *Result[T], v T) {
	if r := recover(); r != nil {
		*out = fallback(v, fmt.Errorf("extractor panic: %v", r))
	}
}
