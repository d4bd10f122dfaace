package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	// eventBuffer is the per-subscriber channel size
	eventBuffer = 16

	// keepAliveInterval bounds how long an idle stream stays silent
	keepAliveInterval = 25 * time.Second
)

// handleSaveEvents godoc
// @Summary      Stream save results
// @Description  Server-sent events with one save_result event per save attempt
// @Tags         Saves
// @Produce      text/event-stream
// @Security     BearerAuth
// @Success      200
// @Router       /saves/events [get]
func (s *Server) handleSaveEvents(w http.ResponseWriter, r *http.Request) {
	if s.saveEvents == nil {
		writeError(w, http.StatusNotImplemented, "event stream not available")
		return
	}
	events, cancel := s.saveEvents.Subscribe(eventBuffer)
	defer cancel()
	streamEvents(w, r, s.closing, "save_result", events)
}

// handlePostEvents godoc
// @Summary      Stream post state
// @Description  Server-sent events with one post_state event per canonical snapshot of the post
// @Tags         Posts
// @Produce      text/event-stream
// @Security     BearerAuth
// @Param        id   path  string  true  "Post ID"
// @Success      200
// @Router       /posts/{id}/events [get]
func (s *Server) handlePostEvents(w http.ResponseWriter, r *http.Request) {
	if s.postEvents == nil {
		writeError(w, http.StatusNotImplemented, "event stream not available")
		return
	}
	events, cancel := s.postEvents.Subscribe(r.PathValue("id"), eventBuffer)
	defer cancel()
	streamEvents(w, r, s.closing, "post_state", events)
}

// streamEvents writes each value from events as an SSE message until the
// client disconnects, the server shuts down or the channel closes.
func streamEvents[T any](w http.ResponseWriter, r *http.Request, closing <-chan struct{}, name string, events <-chan T) {
	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closing:
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
