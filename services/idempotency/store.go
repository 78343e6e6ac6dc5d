// Package idempotency keeps the responses of requests sent with an Idempotency-Key,
// so that retried requests are answered without being processed twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
)

var ErrNotReserved = errors.New("idempotency key is not reserved")

type (
	// Record is what is kept for a key. A zero Status means the first request is still in flight.
	Record struct {
		BodyHash    string `json:"body_hash"`
		Status      int    `json:"status,omitempty"`
		ContentType string `json:"content_type,omitempty"`
		Body        []byte `json:"body,omitempty"`
	}

	Store interface {
		// Reserve marks key as in flight for ttl. When the key is already known,
		// its current record is returned and reserved is false.
		Reserve(ctx context.Context, key, bodyHash string, ttl time.Duration) (rec Record, reserved bool, err error)
		// Complete stores the final response of a reserved key for ttl.
		Complete(ctx context.Context, key string, rec Record, ttl time.Duration) error
		// Release forgets a reserved key, so the request can be retried.
		Release(ctx context.Context, key string) error
	}
)

func (rec Record) InFlight() bool {
	return rec.Status == 0
}

// HashBody returns the hex SHA-256 of a request body.
func HashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
