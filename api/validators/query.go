package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
)

// QueryString reads an optional query parameter.
func QueryString(r *http.Request, key string, maxLen int) string {
	return SanitizeString(r.URL.Query().Get(key), maxLen)
}

// QueryNumbers parses a comma separated number list such as ?numbers=3,7,12.
// Order is kept and repeats are rejected.
func QueryNumbers(r *http.Request, key string, maxItems int) ([]int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "query parameter is required").WithDetails(map[string]any{"field": key})
	}
	parts := strings.Split(raw, ",")
	if maxItems > 0 && len(parts) > maxItems {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "too many numbers").WithDetails(map[string]any{"field": key, "max": maxItems})
	}
	seen := make(map[int]struct{}, len(parts))
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "numbers must be numeric").WithDetails(map[string]any{"field": key, "value": part})
		}
		if _, dup := seen[n]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "numbers must not repeat").WithDetails(map[string]any{"field": key, "value": n})
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}
