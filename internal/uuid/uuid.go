// Package uuid wraps github.com/google/uuid for string identifiers.
package uuid

import "github.com/google/uuid"

// New returns a random (version 4) UUID in canonical string form.
func New() string {
	return uuid.NewString()
}
