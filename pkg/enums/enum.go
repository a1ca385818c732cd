// Package enums holds the string enums persisted in the database and sent
// on the wire.
package enums

import (
	"fmt"
	"slices"
)

func oneOf[T ~string](v T, valid []T) bool {
	return slices.Contains(valid, v)
}

func parse[T ~string](kind, value string, valid []T) (T, error) {
	if v := T(value); oneOf(v, valid) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}
