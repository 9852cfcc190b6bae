package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kiranshivaraju/sentineleye/pkg/models"
)

const defaultKeepAlive = 15 * time.Second

// NewEventsHandler returns an http.HandlerFunc for GET /api/v1/events. It
// streams store change events as Server-Sent Events until the client goes
// away. Events are dropped for clients that fall more than a buffer behind;
// they re-read the store on the next event anyway.
func NewEventsHandler(sub ChangeSubscriber, keepAlive time.Duration) http.HandlerFunc {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rc := http.NewResponseController(w)
		// The server-wide write timeout would cut the stream.
		_ = rc.SetWriteDeadline(time.Time{})

		events := make(chan models.ChangeEvent, 32)
		unsubscribe := sub.Subscribe(func(ev models.ChangeEvent) {
			select {
			case events <- ev:
			default:
			}
		})
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ": connected\n\n")
		if err := rc.Flush(); err != nil {
			slog.WarnContext(r.Context(), "event stream unsupported", "error", err)
			return
		}

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case ev := <-events:
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
			case <-ticker.C:
				fmt.Fprint(w, ": ping\n\n")
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
