package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"sovereign/internal/domain"
)

// Fingerprint returns a short stable hash of the canonicalized context.
// Field order is irrelevant: the JSON is canonicalized per RFC 8785 before
// hashing. Used only for audit and logging, never for branching logic.
func Fingerprint(dctx domain.DecisionContext) (string, error) {
	raw, err := json.Marshal(dctx)
	if err != nil {
		return "", fmt.Errorf("marshal context: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize context: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:12], nil
}
