package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/felixgeelhaar/opsquery/application"
	"github.com/felixgeelhaar/opsquery/domain/agent"
	"github.com/felixgeelhaar/opsquery/domain/tool"
	"github.com/felixgeelhaar/opsquery/infrastructure/logging"
	"github.com/felixgeelhaar/opsquery/infrastructure/validation"
)

// maxBodyBytes bounds request bodies independently of the query limit.
const maxBodyBytes = 1 << 20

// QueryRequest is the body of the query endpoints.
type QueryRequest struct {
	Query string `json:"query"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type toolInfo struct {
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	Schema         tool.Schema `json:"input_schema"`
	MetadataFields []string    `json:"metadata_fields,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]string{"status": "ok"}
	if s.config.Version != "" {
		body["version"] = s.config.Version
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	out := []toolInfo{}
	if s.config.Registry != nil {
		for _, t := range s.config.Registry.List() {
			out = append(out, toolInfo{
				Name:           t.Name(),
				Description:    t.Description(),
				Schema:         t.InputSchema(),
				MetadataFields: t.MetadataFields(),
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	result, err := s.runner.Run(ctx, req.Query)
	if err != nil {
		s.runFailed(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	sse := NewSSEWriter(w)
	if sse == nil {
		writeError(w, http.StatusInternalServerError, codeStreaming, "response writer does not support streaming")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	observer := application.WithObserver(func(t agent.Turn) {
		if err := sse.SendEvent(eventTurn, t); err != nil {
			logging.Warn().
				Add(logging.Component("api")).
				Add(logging.ErrorField(err)).
				Msg("dropping stream event")
		}
	})

	result, err := s.runner.Run(ctx, req.Query, observer)
	if err != nil {
		_ = sse.SendEvent(eventError, errorResponse{Error: err.Error(), Code: codeInternal})
		return
	}
	_ = sse.SendEvent(eventFinal, result)
}

// decodeQuery reads and validates the request body. On failure the error
// response has already been written.
func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (QueryRequest, bool) {
	var req QueryRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, fmt.Sprintf("reading request body: %v", err))
		return req, false
	}

	if err := s.queryRules.Validate(body); err != nil {
		code := codeInvalidRequest
		var errs validation.Errors
		if errors.As(err, &errs) && errs.Has(validation.RuleMaxLength) {
			code = codeQueryTooLong
		}
		writeError(w, http.StatusBadRequest, code, err.Error())
		return req, false
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, fmt.Sprintf("invalid request body: %v", err))
		return req, false
	}
	req.Query = strings.TrimSpace(req.Query)
	return req, true
}

// queryRules validates the body of the query endpoints.
func queryRules(maxLen int) *validation.Schema {
	rules := []validation.Rule{
		validation.Required(),
		validation.String(),
		validation.UTF8(),
		validation.NoControlChars(),
	}
	if maxLen > 0 {
		rules = append(rules, validation.MaxLength(maxLen))
	}
	return validation.NewSchema().AddRule("query", rules...)
}

func (s *Server) runFailed(w http.ResponseWriter, err error) {
	if errors.Is(err, agent.ErrEmptyQuery) {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	logging.Error().
		Add(logging.Component("api")).
		Add(logging.ErrorField(err)).
		Msg("run failed")
	writeError(w, http.StatusInternalServerError, codeInternal, "run failed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().
			Add(logging.Component("api")).
			Add(logging.ErrorField(err)).
			Msg("writing response")
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}
