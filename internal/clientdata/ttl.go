package clientdata

import "time"

// TTL constants for cached external data.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Currency exchange rates move intraday; an hour is fresh enough for
	// dashboard conversion.
	TTLExchangeRate = time.Hour

	// Extraction results are keyed by document checksum and never change
	// for the same document.
	TTLExtraction = 30 * 24 * time.Hour
)
