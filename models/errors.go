package models

import "github.com/rotisserie/eris"

var (
	// ErrTransport covers network failures and timeouts.
	ErrTransport = eris.New("transport failure")
	// ErrBlocked means an anti-automation defense answered instead of the site.
	ErrBlocked = eris.New("blocked or challenged")
	// ErrParse means no listing container was found in the document.
	ErrParse = eris.New("listing container not found")
	// ErrNoObservations is returned once every tier came back empty.
	ErrNoObservations = eris.New("no price observations")
	// ErrInvalidQuery rejects a query before any network call.
	ErrInvalidQuery = eris.New("invalid query")
	// ErrCacheCorrupt is fatal: a cached value could not be decoded.
	ErrCacheCorrupt = eris.New("cache entry corrupt")
)

// FailureKind records why a ProviderResult came back empty.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureTransport FailureKind = "transport"
	FailureBlocked   FailureKind = "blocked"
	FailureParse     FailureKind = "parse"
)

// ClassifyFailure maps an adapter error onto the failure taxonomy.
// Anything unrecognised counts as a transport failure.
func ClassifyFailure(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case eris.Is(err, ErrBlocked):
		return FailureBlocked
	case eris.Is(err, ErrParse):
		return FailureParse
	default:
		return FailureTransport
	}
}
