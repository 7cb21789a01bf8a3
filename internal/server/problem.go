package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bryan-buckman/unitview/internal/cms"
	"github.com/bryan-buckman/unitview/internal/doorway"
	"github.com/bryan-buckman/unitview/internal/listing"
	"github.com/bryan-buckman/unitview/internal/model"
	"github.com/bytedance/sonic"
)

// ProblemDetails follows RFC 7807: Problem Details for HTTP APIs.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

func (pd *ProblemDetails) Error() string {
	return fmt.Sprintf("%d %s: %s", pd.Status, pd.Title, pd.Detail)
}

func writeProblem(w http.ResponseWriter, status int, detail, instance string) {
	pd := &ProblemDetails{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
	data, _ := sonic.Marshal(pd)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, http.StatusBadRequest, detail, r.URL.Path)
}

// writeError maps an operation error to its problem status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeProblem(w, statusFor(err), err.Error(), r.URL.Path)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, listing.ErrNoControl), errors.Is(err, doorway.ErrUnknownAction):
		return http.StatusNotFound
	case errors.Is(err, listing.ErrDisabled), errors.Is(err, listing.ErrNoGrid):
		return http.StatusConflict
	case errors.Is(err, model.ErrUnknownFilter), errors.Is(err, model.ErrInvalidSort):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, cms.ErrUpstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
