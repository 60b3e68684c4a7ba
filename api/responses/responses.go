package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
	"github.com/angelmondragon/offers-backend/pkg/logger"
	"github.com/angelmondragon/offers-backend/pkg/types"
)

// RequestIDHeader is set by the request id middleware before any handler runs.
const RequestIDHeader = "X-Request-Id"

// operatorCodes return their full message chain instead of the generic
// public message; publish failures are read by operators.
var operatorCodes = map[pkgerrors.Code]bool{
	pkgerrors.CodeValidation:     true,
	pkgerrors.CodeNotFound:       true,
	pkgerrors.CodePrecondition:   true,
	pkgerrors.CodeConflict:       true,
	pkgerrors.CodeStateConflict:  true,
	pkgerrors.CodeLockContention: true,
	pkgerrors.CodeDependency:     true,
	pkgerrors.CodeRollback:       true,
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteError maps err onto its HTTP status and error envelope and logs the
// flattened chain.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	apiErr := types.APIError{
		Code:      string(typed.Code()),
		Message:   meta.PublicMessage,
		RequestID: w.Header().Get(RequestIDHeader),
	}
	if operatorCodes[typed.Code()] {
		if m := pkgerrors.Describe(typed); m != "" {
			apiErr.Message = m
		}
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
		ctx = logg.WithField(ctx, "status", meta.HTTPStatus)
		logg.Error(ctx, "request.error", err)
	}
	writeJSON(w, meta.HTTPStatus, types.ErrorEnvelope{Error: apiErr})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Int("status", status).Msg("failed to encode response")
	}
}
