package model

import "github.com/rotisserie/eris"

var (
	// ErrInvalidInput marks a request rejected before any lookup (bad coordinates, radius, year or geography).
	ErrInvalidInput = eris.New("invalid input")

	// ErrSourceUnavailable marks a geo store failure. The request is aborted and not retried here.
	ErrSourceUnavailable = eris.New("geo source unavailable")

	// ErrNoData marks a successful statistics response with no usable rows.
	ErrNoData = eris.New("no data")
)
