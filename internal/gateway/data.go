// ABOUTME: Sensor data ingestion and history handlers with Idempotency-Key deduplication
// ABOUTME: A retried submission with the same key returns the first result instead of recording twice

package gateway

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/2389/coco-gateway/internal/dedupe"
	"github.com/2389/coco-gateway/internal/store"
)

// IdempotencyKeyHeader names the request header used to deduplicate data submissions.
const IdempotencyKeyHeader = "Idempotency-Key"

// DataRequest is the JSON body for POST /data/{item_id}. A zero timestamp
// means the time the gateway receives it.
type DataRequest struct {
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// ReadingResponse is one recorded data point.
type ReadingResponse struct {
	ItemID    string         `json:"item_id"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

func newReadingResponse(r *store.Reading) ReadingResponse {
	return ReadingResponse{ItemID: r.ItemID, Timestamp: r.Timestamp, Data: r.Data}
}

// handleRecordData handles POST /data/{item_id}.
//
// With an Idempotency-Key the key is claimed before recording: a completed
// key replays the stored response, an in-flight key answers 409, and a
// failure releases the key so the client can retry.
func (g *Gateway) handleRecordData(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "item_id")

	var req DataRequest
	if !decodeBody(w, r, &req) {
		return
	}

	key := r.Header.Get(IdempotencyKeyHeader)
	if key != "" {
		key = "data:" + itemID + ":" + key
		state, result := g.dedupe.Claim(key)
		switch state {
		case dedupe.Done:
			g.logger.Debug("duplicate data submission replayed", "item_id", itemID)
			writeJSON(w, http.StatusCreated, result)
			return
		case dedupe.Pending:
			sendJSONError(w, http.StatusConflict, "a request with this idempotency key is in progress")
			return
		}
	}

	reading, err := g.hub.RecordData(r.Context(), &store.Reading{
		ItemID:    itemID,
		Timestamp: req.Timestamp,
		Data:      req.Data,
	})
	if err != nil {
		if key != "" {
			g.dedupe.Release(key)
		}
		g.sendError(w, r, err)
		return
	}

	resp := newReadingResponse(reading)
	if key != "" {
		g.dedupe.Complete(key, resp)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleListReadings handles GET /data/{item_id}?from=&to= (unix milliseconds).
func (g *Gateway) handleListReadings(w http.ResponseWriter, r *http.Request) {
	from, ok := queryInt(w, r, "from")
	if !ok {
		return
	}
	to, ok := queryInt(w, r, "to")
	if !ok {
		return
	}

	readings, err := g.hub.ListReadings(r.Context(), chi.URLParam(r, "item_id"), from, to)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(readings, newReadingResponse))
}

// queryInt parses an optional integer query parameter; absent means zero.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid "+name+" parameter")
		return 0, false
	}
	return v, true
}
