package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cashbook/internal/cashbook"
	"cashbook/internal/log"
)

const feedKeepAlive = 25 * time.Second

// handleFeed streams the workspace state as server-sent events. Every change
// is sent as an "event: state" frame; a slow reader only ever gets the latest
// state.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request, ws *cashbook.Client, _ string) {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.fail(w, r, log.OpWatch, err)
		return
	}

	updates := make(chan cashbook.State, 1)
	unsubscribe := ws.Subscribe(func(st cashbook.State) {
		select {
		case updates <- st:
		default:
			// replace the pending state with the newer one
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- st:
			default:
			}
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	logger := log.FromContext(r.Context())
	logger.DebugContext(r.Context(), "Feed opened", log.FieldOperation, log.OpWatch)
	defer logger.DebugContext(r.Context(), "Feed closed", log.FieldOperation, log.OpWatch)

	ping := time.NewTicker(feedKeepAlive)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.stopping:
			return
		case st := <-updates:
			if err := writeEvent(w, "state", st); err != nil {
				return
			}
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
