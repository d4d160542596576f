package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/psaab/iproute2/pkg/grammar"
	"github.com/psaab/iproute2/pkg/routetable"
	"github.com/psaab/iproute2/pkg/routing"
)

// maxParseBody bounds a parse request body.
const maxParseBody = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{Success: false, Error: msg})
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, map[string]string{"status": "ok"})
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	opts := s.parser.Options()
	writeOK(w, StatusResponse{
		Uptime:    time.Since(s.startTime).Truncate(time.Second).String(),
		Multipath: opts.Multipath,
		Duplicate: opts.Duplicates.String(),
		Trailing:  opts.Trailing.String(),
		Store:     s.tables != nil,
	})
}

func (s *Server) parseHandler(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxParseBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if (req.Line == "") == (len(req.Tokens) == 0) {
		writeError(w, http.StatusBadRequest, "exactly one of line or tokens is required")
		return
	}

	var (
		route *grammar.Route
		err   error
		input = req.Line
	)
	if req.Line != "" {
		route, err = s.parser.ParseLine(req.Line)
	} else {
		input = strings.Join(req.Tokens, " ")
		route, err = s.parser.Parse(req.Tokens)
	}
	s.recorder.Record("http", input, route, err)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   err.Error(),
			Kind:    grammar.ErrorKind(err),
		})
		return
	}

	rest := route.Remainder
	if rest == nil {
		rest = []string{}
	}
	writeOK(w, ParseResult{
		Canonical: route.String(),
		Tree:      route.Map(),
		Remainder: rest,
		Command:   routing.Command(route),
	})
}

func (s *Server) tablesHandler(w http.ResponseWriter, r *http.Request) {
	if s.tables == nil {
		writeError(w, http.StatusServiceUnavailable, "table store not configured")
		return
	}
	infos, err := s.tables.ListTables(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if infos == nil {
		infos = []routetable.TableInfo{}
	}
	writeOK(w, infos)
}

func (s *Server) tableHandler(w http.ResponseWriter, r *http.Request) {
	if s.tables == nil {
		writeError(w, http.StatusServiceUnavailable, "table store not configured")
		return
	}
	name := r.PathValue("name")
	t, err := s.tables.LoadTable(r.Context(), name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, routetable.ErrTableNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	detail := TableDetail{
		Name:        t.Name,
		Description: t.Description,
		Routes:      []string{},
		Commands:    t.Commands(),
	}
	for _, route := range t.Routes() {
		detail.Routes = append(detail.Routes, route.String())
	}
	if detail.Commands == nil {
		detail.Commands = [][]string{}
	}
	writeOK(w, detail)
}
