package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-openapi/runtime/middleware/header"
	"github.com/pkg/errors"

	"github.com/jake-scott/hon-client/internal/pkg/appliance"
	"github.com/jake-scott/hon-client/internal/pkg/honapi"
	"github.com/jake-scott/hon-client/internal/pkg/logging"
	"github.com/jake-scott/hon-client/internal/pkg/parameter"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Detail map[string]string `json:"detail,omitempty"`
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Header.Get("Content-Type") != "" {
		value, _ := header.ParseValueAndParams(r.Header, "Content-Type")
		if value != "application/json" {
			return errors.Errorf("expected JSON request, got %s", value)
		}
	}

	// 100kb max body
	reader := http.MaxBytesReader(w, r.Body, 100*1024)
	dec := json.NewDecoder(reader)

	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(err, "decoding request body")
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("request body must only contain a single JSON object")
	}

	return nil
}

func sendJSONResponse(w http.ResponseWriter, r *http.Request, status int, d interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(d); err != nil {
		logging.Logger(r.Context()).WithError(err).Error("sending json response")
	}
}

// statusOf maps library errors to HTTP status codes
func statusOf(err error) int {
	var apiErr *honapi.ApiError

	switch {
	case errors.Is(err, honapi.ErrNoAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, appliance.ErrUnknownSetting), errors.Is(err, appliance.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, appliance.ErrInactiveSetting):
		return http.StatusConflict
	case parameter.IsInvalidValue(err):
		return http.StatusUnprocessableEntity
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func sendError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		logging.Logger(r.Context()).WithError(err).Error("request failed")
	} else {
		logging.Logger(r.Context()).WithError(err).Info("request rejected")
	}

	sendJSONResponse(w, r, status, errorResponse{Error: err.Error()})
}
