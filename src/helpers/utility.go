package helpers

import (
	"github.com/google/uuid"
)

// GenerateUUID returns a new random document identifier.
func GenerateUUID() string {
	return uuid.New().String()
}
