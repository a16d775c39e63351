// Package idhash computes deterministic identifiers from domain keys.
// Deterministic IDs keep re-runs idempotent: the same logical record always
// hashes to the same identifier.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ComputeRowID computes a deterministic backtest row_id using SHA256.
// Formula: SHA256(model_id|symbol|as_of_unix_ms|horizon_minutes)
// Returns hex-encoded hash (64 characters).
func ComputeRowID(modelID, symbol string, asOf time.Time, horizonMinutes int) string {
	data := fmt.Sprintf("%s|%s|%d|%d",
		modelID,
		symbol,
		asOf.UnixMilli(),
		horizonMinutes,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeEventID computes a deterministic event_id using SHA256.
// Formula: SHA256(source|occurred_at_unix_ms|raw_text)
// Returns hex-encoded hash (64 characters).
func ComputeEventID(source string, occurredAt time.Time, rawText string) string {
	data := fmt.Sprintf("%s|%d|%s",
		source,
		occurredAt.UnixMilli(),
		rawText,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
