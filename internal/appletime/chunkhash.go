package appletime

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// pointNamespace is a fixed UUID namespace for deriving deterministic
// UUIDv5 point ids from content hashes, for stores that require a UUID
// point id rather than an arbitrary string id.
var pointNamespace = uuid.MustParse("6f9c4e6e-6b2a-4f1a-9d52-2f6a6f0b9a10")

// ChunkID returns the SHA-256 hex digest of formatted chunk text, used as
// the chunk's content-addressed id (§4.1, §4.5).
func ChunkID(formattedText string) string {
	sum := sha256.Sum256([]byte(formattedText))
	return hex.EncodeToString(sum[:])
}

// PointUUID derives a deterministic UUIDv5 from a chunk hash for stores
// that require UUID-shaped point ids instead of arbitrary strings.
func PointUUID(chunkHash string) uuid.UUID {
	return uuid.NewSHA1(pointNamespace, []byte(chunkHash))
}
