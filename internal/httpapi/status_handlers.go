package httpapi

import "net/http"

type StatusHandler struct {
	Tracker *Tracker
}

func (h StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.Tracker == nil {
		WriteError(w, r, http.StatusServiceUnavailable, "no_tracker", "run status is not tracked")
		return
	}
	WriteJSON(w, http.StatusOK, h.Tracker.Load())
}
