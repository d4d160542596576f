// Package api implements the HTTP API for route parsing and stored tables,
// plus the Prometheus metrics endpoint.
package api

// Response is the standard JSON response envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"` // error class for parse failures
}

// ParseRequest carries either a text line or pre-split tokens.
type ParseRequest struct {
	Line   string   `json:"line,omitempty"`
	Tokens []string `json:"tokens,omitempty"`
}

// ParseResult is a successfully parsed route.
type ParseResult struct {
	Canonical string         `json:"canonical"`
	Tree      map[string]any `json:"tree"`
	Remainder []string       `json:"remainder"`
	Command   []string       `json:"command"`
}

// TableDetail is one stored table with its routes.
type TableDetail struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Routes      []string   `json:"routes"`
	Commands    [][]string `json:"commands"`
}

// StatusResponse holds daemon status information.
type StatusResponse struct {
	Uptime    string `json:"uptime"`
	Multipath bool   `json:"multipath"`
	Duplicate string `json:"duplicates"`
	Trailing  string `json:"trailing"`
	Store     bool   `json:"store"`
}

// ParseEvent describes one parse attempt, as streamed over SSE.
type ParseEvent struct {
	Time      string `json:"time"`
	Source    string `json:"source"` // http, grpc
	Input     string `json:"input"`
	Canonical string `json:"canonical,omitempty"`
	Error     string `json:"error,omitempty"`
	Kind      string `json:"kind,omitempty"`
}
