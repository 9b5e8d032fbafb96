package httpapi

import (
	"io"
	"net/http"
	"time"

	"placement-engine/internal/events"
)

// keepAlive is how often an idle stream gets an SSE comment line.
const keepAlive = 25 * time.Second

// RunEvents streams run lifecycle events from the hub as server-sent events.
type RunEvents struct {
	Hub *events.Hub
}

func (h RunEvents) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, r, http.StatusNotImplemented, "no_streaming", "response writer cannot flush event stream")
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub := h.Hub.Subscribe()
	defer h.Hub.Unsubscribe(sub)

	send := func(payload string) {
		_, _ = io.WriteString(w, "event: run\ndata: "+payload+"\n\n")
		flusher.Flush()
	}
	send(events.Make(RequestIDFrom(r.Context()), events.TypePing, nil))

	tick := time.NewTicker(keepAlive)
	defer tick.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick.C:
			_, _ = io.WriteString(w, ": keepalive\n\n")
			flusher.Flush()
		case payload, open := <-sub:
			if !open {
				return
			}
			send(payload)
		}
	}
}
