package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Chunk is a contiguous window of a normalized document text.
// Offsets are character (rune) positions, half-open [StartOffset, EndOffset).
type Chunk struct {
	Index       int
	StartOffset int
	EndOffset   int
	Content     string
	ContentHash string
}

// HashContent returns the lowercase hex SHA-256 of s.
func HashContent(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// StoredChunk is a chunk persisted with its embedding for one version.
type StoredChunk struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	DocumentID uuid.UUID
	VersionID  uuid.UUID
	Chunk
	Embedding []float32
	CreatedAt time.Time
}
