package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/couchcryptid/minesafe-service/internal/domain"
	"github.com/couchcryptid/minesafe-service/internal/tracking"
)

// handleStream serves a live tracking session as server-sent events. Input
// errors are reported as ordinary JSON responses before the stream opens;
// after that, failures arrive as "error" events and only the client closes
// the stream.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, tenantID string) {
	q := r.URL.Query()
	interval, err := parseInterval(q.Get("interval"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.streams, cancel)
	defer stop()

	session, err := s.deps.Routes.Start(ctx, tracking.Request{
		TenantID:     tenantID,
		Registration: r.PathValue("reg"),
		Fields:       domain.FieldsFromQuery(q),
		Interval:     interval,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	// The session outlives the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Error("streaming not supported", "error", err)
		return
	}

	sink := &sseSink{w: w, rc: rc}
	if err := session.Run(ctx, sink); err != nil {
		s.logger.Info("tracking stream closed", "tenant_id", tenantID, "registration", r.PathValue("reg"), "error", err)
	}
}

// sseSink writes one event per update and flushes it immediately.
type sseSink struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func (s *sseSink) Send(_ context.Context, u tracking.Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", u.Type, data); err != nil {
		return err
	}
	return s.rc.Flush()
}
