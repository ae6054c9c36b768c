package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"smartcrm-hq/conductor/pkg/ai"
	"smartcrm-hq/conductor/pkg/orchestrator"
	"smartcrm-hq/conductor/pkg/routing"
	"smartcrm-hq/conductor/pkg/server/middleware"
	"smartcrm-hq/conductor/pkg/taskqueue"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, field, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:     message,
		Field:     field,
		RequestID: middleware.GetRequestID(r.Context()),
	})
}

// respondErr maps a domain error to its status code.
func respondErr(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		reqErr  *ai.ValidationError
		taskErr *taskqueue.ValidationError
		tooBig  *http.MaxBytesError
	)
	switch {
	case errors.As(err, &reqErr):
		respondError(w, r, http.StatusBadRequest, reqErr.Field, reqErr.Message)
	case errors.As(err, &taskErr):
		status := http.StatusBadRequest
		if taskErr.Field == "id" {
			status = http.StatusConflict
		}
		respondError(w, r, status, taskErr.Field, taskErr.Message)
	case errors.As(err, &tooBig):
		respondError(w, r, http.StatusRequestEntityTooLarge, "", fmt.Sprintf("request body exceeds %d bytes", tooBig.Limit))
	case errors.Is(err, routing.ErrNoProviderAvailable):
		respondError(w, r, http.StatusServiceUnavailable, "", err.Error())
	case errors.Is(err, orchestrator.ErrProviderCallFailed):
		respondError(w, r, http.StatusBadGateway, "", err.Error())
	default:
		logger.ErrorContext(r.Context(), "Request failed", "error", err, "path", r.URL.Path)
		respondError(w, r, http.StatusInternalServerError, "", "internal server error")
	}
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body into v and runs its validate tags.
// Errors are written to w; the return reports success.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, logger *slog.Logger, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondErr(w, r, logger, err)
			return false
		}
		if errors.Is(err, io.EOF) {
			respondError(w, r, http.StatusBadRequest, "", "request body is empty")
			return false
		}
		respondError(w, r, http.StatusBadRequest, "", "invalid JSON: "+err.Error())
		return false
	}

	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			respondError(w, r, http.StatusBadRequest, jsonField(fe.Namespace()),
				fmt.Sprintf("failed %q validation", fe.Tag()))
			return false
		}
		respondError(w, r, http.StatusBadRequest, "", err.Error())
		return false
	}
	return true
}

// jsonField drops the root struct name from a validator namespace such as
// "taskBody.options.max_retries".
func jsonField(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
