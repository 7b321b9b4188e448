package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// RateLimitKey names the counter for subject in the window starting at window.
func RateLimitKey(subject string, window time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", subject, window.Unix())
}

// ExplanationKey identifies a cached explanation by model version and a hash
// of the normalized record.
func ExplanationKey(modelVersion, recordHash string) string {
	return fmt.Sprintf("explain:%s:%s", modelVersion, recordHash)
}

// Fingerprint returns a hex SHA-256 of data, for use in keys.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
