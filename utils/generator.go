package utils

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// GenerateId returns a prefixed NanoID such as "ntf-V1StGXR8_Z5jdHi6B-myT".
func GenerateId(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}
