package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// setSSEHeaders configures the response for Server-Sent Events streaming.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// writeSSEEvent writes a single SSE event to the response.
func writeSSEEvent(w http.ResponseWriter, id string, event string, data string) {
	fmt.Fprintf(w, "id: %s\n", id)
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// parseStreamHandler streams parse events via SSE. ?result=ok or
// ?result=error limits the stream to successes or failures.
func (s *Server) parseStreamHandler(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("result")
	switch filter {
	case "", "ok", "error":
	default:
		writeError(w, http.StatusBadRequest, "result must be ok or error")
		return
	}

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	sub := s.recorder.Subscribe(128)
	defer sub.Close()

	var seq uint64
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub.C:
			failed := ev.Error != ""
			if (filter == "ok" && failed) || (filter == "error" && !failed) {
				continue
			}
			seq++
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			event := "parsed"
			if failed {
				event = "rejected"
			}
			writeSSEEvent(w, fmt.Sprintf("%d", seq), event, string(data))
		}
	}
}
