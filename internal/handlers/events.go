package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/solodesign/apiserver/internal/events"
	"github.com/solodesign/apiserver/types"
	"go.uber.org/zap"
)

const sseKeepAlive = 25 * time.Second

// EventsHandler streams broker events as server-sent events.
type EventsHandler struct {
	broker *events.Broker
	logger *zap.Logger
}

func NewEventsHandler(broker *events.Broker, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventsHandler{broker: broker, logger: logger}
}

// Stream accepts ?kinds=project.created,media.uploaded to filter.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var kinds []types.EventKind
	for _, raw := range strings.Split(r.URL.Query().Get("kinds"), ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			kinds = append(kinds, types.EventKind(raw))
		}
	}
	sub := h.broker.Subscribe(kinds...)
	defer h.broker.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("encode event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
