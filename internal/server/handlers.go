package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/admit/internal/dispatch"
	"github.com/roach88/admit/internal/ir"
)

// ValidateRequest is the body of a validate call. The entry's content is
// either Entry, any JSON value, or Content, the raw content as a string.
type ValidateRequest struct {
	Type    string            `json:"type"`
	Entry   json.RawMessage   `json:"entry,omitempty"`
	Content *string           `json:"content,omitempty"`
	Ctx     ir.ValidationData `json:"ctx"`
	Token   string            `json:"token,omitempty"`
}

// VerdictResponse is the result of a validate call.
type VerdictResponse struct {
	Token        string     `json:"token"`
	App          string     `json:"app"`
	EntryType    string     `json:"entry_type"`
	EntryAddress string     `json:"entry_address"`
	Outcome      ir.Outcome `json:"outcome"`
	Reason       string     `json:"reason,omitempty"`
	Admitted     bool       `json:"admitted"`
	Module       string     `json:"module,omitempty"`
	Function     string     `json:"function,omitempty"`
	InvocationID string     `json:"invocation_id,omitempty"`
}

// BatchRequest is the body of a batch validate call.
type BatchRequest struct {
	Requests []ValidateRequest `json:"requests"`
}

// BatchResult is one item of a batch response: a verdict or an error.
type BatchResult struct {
	Verdict *VerdictResponse `json:"verdict,omitempty"`
	Error   *ErrorDetail     `json:"error,omitempty"`
}

// BatchResponse is the result of a batch validate call.
type BatchResponse struct {
	Results []BatchResult `json:"results"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes an error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store != nil {
		if err := s.cfg.Store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listApps(w http.ResponseWriter, r *http.Request) {
	names, err := s.cfg.Apps.Names(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "registry_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"apps": names})
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.lookupApp(w, r)
	if !ok {
		return
	}

	var body ValidateRequest
	if !s.decode(w, r, &body) {
		return
	}
	req, err := toRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	v, err := s.cfg.Dispatcher.Run(r.Context(), reg, req)
	if err != nil {
		status, detail := dispatchError(err)
		writeJSON(w, status, ErrorResponse{Error: detail})
		return
	}
	writeJSON(w, http.StatusOK, s.toResponse(v))
}

func (s *Server) validateBatch(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.lookupApp(w, r)
	if !ok {
		return
	}

	var body BatchRequest
	if !s.decode(w, r, &body) {
		return
	}
	reqs := make([]dispatch.Request, len(body.Requests))
	for i, item := range body.Requests {
		req, err := toRequest(item)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("requests[%d]: %s", i, err))
			return
		}
		reqs[i] = req
	}

	items, err := s.cfg.Dispatcher.DispatchAll(r.Context(), reg, reqs, s.cfg.BatchLimit)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "cancelled", err.Error())
		return
	}
	resp := BatchResponse{Results: make([]BatchResult, len(items))}
	for i, item := range items {
		if item.Err != nil {
			_, detail := dispatchError(item.Err)
			resp.Results[i] = BatchResult{Error: &detail}
			continue
		}
		v := s.toResponse(item.Verdict)
		resp.Results[i] = BatchResult{Verdict: &v}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) verdictByToken(w http.ResponseWriter, r *http.Request) {
	rec, ok, err := s.cfg.Store.ReadVerdictByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "verdict_not_found", "no verdict recorded for this token")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) lookupApp(w http.ResponseWriter, r *http.Request) (dispatch.Registry, bool) {
	app := chi.URLParam(r, "app")
	reg, ok, err := s.cfg.Apps.Lookup(r.Context(), app)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "registry_unavailable", err.Error())
		return nil, false
	}
	if !ok {
		writeError(w, http.StatusNotFound, "app_not_found", fmt.Sprintf("application %q is not served", app))
		return nil, false
	}
	return reg, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", err.Error())
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func (s *Server) toResponse(v dispatch.Verdict) VerdictResponse {
	resp := VerdictResponse{
		Token:        v.Token,
		App:          v.App,
		EntryType:    v.EntryType,
		EntryAddress: v.EntryAddress,
		Outcome:      v.Result.Outcome(),
		Reason:       ir.Reason(v.Result),
		Admitted:     ir.Admits(v.Result, s.cfg.Strict),
		Function:     v.Function,
		InvocationID: v.InvocationID,
	}
	if v.Module.Module != "" {
		resp.Module = v.Module.Module
	}
	return resp
}

func toRequest(body ValidateRequest) (dispatch.Request, error) {
	if body.Type == "" {
		return dispatch.Request{}, errors.New("type is required")
	}
	var entry ir.Entry
	switch {
	case len(body.Entry) > 0 && body.Content != nil:
		return dispatch.Request{}, errors.New("entry and content are mutually exclusive")
	case len(body.Entry) > 0:
		entry = ir.Entry{Content: body.Entry}
	case body.Content != nil:
		entry = ir.NewEntry(*body.Content)
	default:
		return dispatch.Request{}, errors.New("entry or content is required")
	}
	return dispatch.Request{
		Entry: entry,
		Type:  ir.ParseEntryType(body.Type),
		Data:  body.Ctx,
		Token: body.Token,
	}, nil
}

// dispatchError maps a dispatch error to a status and error detail.
func dispatchError(err error) (int, ErrorDetail) {
	var de *dispatch.Error
	if !errors.As(err, &de) {
		return http.StatusInternalServerError, ErrorDetail{Code: "internal", Message: err.Error()}
	}
	detail := ErrorDetail{Code: string(de.Code), Message: de.Error()}
	switch de.Code {
	case dispatch.ErrCodeMalformedEntry, dispatch.ErrCodeMalformedContext, dispatch.ErrCodeInvalidTypeName:
		return http.StatusUnprocessableEntity, detail
	case dispatch.ErrCodeRegistryLookup:
		return http.StatusServiceUnavailable, detail
	default:
		return http.StatusInternalServerError, detail
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}
