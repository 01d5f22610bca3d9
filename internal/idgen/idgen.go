// Package idgen generates local identifiers: short nanoid IDs for drafts and
// sessions, and UUID idempotency tokens for commits to the system of record.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the local identifiers. Entry numbers are never generated
// here; the system of record assigns them.
const (
	DraftPrefix   = "dr-"
	SessionPrefix = "ss-"
)

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 12

// Draft returns a new draft ID.
func Draft() (string, error) {
	return GenerateWithPrefix(DraftPrefix)
}

// Session returns a new session ID.
func Session() (string, error) {
	return GenerateWithPrefix(SessionPrefix)
}

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// Token returns a fresh idempotency token.
func Token() string {
	return uuid.NewString()
}
