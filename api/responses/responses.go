// Package responses renders the JSON envelope shared by every endpoint.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/angelmondragon/numberpool/internal/notices"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
	"github.com/angelmondragon/numberpool/pkg/logger"
	"github.com/angelmondragon/numberpool/pkg/types"
)

func WriteSuccess(ctx context.Context, w http.ResponseWriter, data any) {
	WriteSuccessStatus(ctx, w, http.StatusOK, data)
}

// WriteSuccessStatus writes data with the notices collected on ctx.
func WriteSuccessStatus(ctx context.Context, w http.ResponseWriter, status int, data any) {
	write(w, status, types.Envelope{Data: data, Notices: pending(ctx)})
}

// WriteError maps err onto its public code and status. Messages of server
// side failures are replaced by the code's generic text, and details are only
// exposed for codes that allow them.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	apiErr := &types.APIError{Code: string(typed.Code()), Message: meta.PublicMessage}
	if meta.HTTPStatus < http.StatusInternalServerError && typed.Message() != "" {
		apiErr.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}

	if logg != nil {
		logg.Error(logg.WithFields(ctx, pkgerrors.Dump(err).Fields()), "request failed", err)
	}
	write(w, meta.HTTPStatus, types.Envelope{Error: apiErr, Notices: pending(ctx)})
}

func pending(ctx context.Context) any {
	if items := notices.FromContext(ctx).Drain(); len(items) > 0 {
		return items
	}
	return nil
}

func write(w http.ResponseWriter, status int, body types.Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	// The status line is already out; an encode failure only means the client went away.
	_ = json.NewEncoder(w).Encode(body)
}
