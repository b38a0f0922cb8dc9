// ABOUTME: Engine event ingestion over HTTP for privileged callers
// ABOUTME: Decodes one event or an array and hands them to the hub in body order

package gateway

import (
	"errors"
	"io"
	"net/http"

	"github.com/2389/coco-gateway/internal/auth"
	"github.com/2389/coco-gateway/internal/engine"
)

// EngineEventsResponse reports how many events were queued.
type EngineEventsResponse struct {
	Accepted int `json:"accepted"`
}

// handleEngineEvents handles POST /engine/events. The whole body is decoded
// before any event is queued, so a bad document queues nothing.
func (g *Gateway) handleEngineEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, "reading body failed")
		return
	}

	events, err := engine.DecodeAll(body)
	if err != nil {
		if errors.Is(err, engine.ErrUnknownEvent) || errors.Is(err, engine.ErrInvalidEvent) {
			sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		g.sendError(w, r, err)
		return
	}

	for _, e := range events {
		g.hub.Handle(e)
	}

	g.logger.Debug("engine events queued", "count", len(events), "by", auth.MustFromContext(r.Context()).UserID)
	writeJSON(w, http.StatusAccepted, EngineEventsResponse{Accepted: len(events)})
}
