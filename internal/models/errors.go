package models

import (
	"errors"
)

// Error taxonomy for ingestion and serving. These sentinels are wrapped with
// fmt.Errorf("%w", ...) at the failure site and checked with errors.Is by
// callers that need to distinguish recoverable from fatal conditions.
var (
	// ErrSourceUnavailable indicates the content behind a source could not be
	// read (missing file, network failure). Recovered per-source: a batch
	// ingestion continues past it.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrSourceTypeUnsupported indicates no provider is registered for a
	// source's type. Fatal to that add only.
	ErrSourceTypeUnsupported = errors.New("source type unsupported")

	// ErrInferenceUnavailable indicates no model is loaded or the inference
	// backend is not reachable. Surfaced as error content or 503, never a
	// crash.
	ErrInferenceUnavailable = errors.New("inference unavailable")
)
