package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"fluxmare/internal/domain"
	"fluxmare/internal/storage"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 30 * time.Second
)

type comparisonsResponse struct {
	Comparisons []domain.ComparisonSnapshot `json:"comparisons"`
	Max         int                         `json:"max"`
}

// streamMessage is one frame on the comparison websocket.
type streamMessage struct {
	Type        string                      `json:"type"`
	Comparisons []domain.ComparisonSnapshot `json:"comparisons"`
}

// GET /api/v1/comparisons
func (s *Server) handleListComparisons(w http.ResponseWriter, r *http.Request) {
	list, err := s.comparisons.Snapshots(r.Context())
	if err != nil {
		s.writeStoreErr(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, comparisonsResponse{Comparisons: list, Max: domain.MaxComparisons})
}

// handleAddComparison pins a dashboard. The body carries either the
// dashboard itself or the id of one from GET /api/v1/dashboards.
// POST /api/v1/comparisons
func (s *Server) handleAddComparison(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input struct {
		DashboardID string                  `json:"dashboardId"`
		Dashboard   *domain.DashboardResult `json:"dashboard"`
	}
	if err := decodeJSON(r, &input); err != nil {
		s.writeErr(ctx, w, http.StatusBadRequest, "invalid json", "")
		return
	}

	var d domain.DashboardResult
	switch {
	case input.Dashboard != nil:
		d = *input.Dashboard
	case input.DashboardID != "":
		sess, ok := s.chatSession(w, r)
		if !ok {
			return
		}
		found := false
		for _, e := range sess.ListDashboards() {
			if e.ID == input.DashboardID {
				d, found = e.Dashboard, true
				break
			}
		}
		if !found {
			s.writeStoreErr(ctx, w, fmt.Errorf("dashboard %q: %w", input.DashboardID, storage.ErrNotFound))
			return
		}
	default:
		s.writeErr(ctx, w, http.StatusBadRequest, "dashboard or dashboardId is required", "")
		return
	}

	list, err := s.comparisons.Add(ctx, d)
	if err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comparisonsResponse{Comparisons: list, Max: domain.MaxComparisons})
}

// DELETE /api/v1/comparisons/{index}
func (s *Server) handleRemoveComparison(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.writeErr(ctx, w, http.StatusBadRequest, "index must be an integer", "")
		return
	}
	list, err := s.comparisons.Remove(ctx, index)
	if err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, comparisonsResponse{Comparisons: list, Max: domain.MaxComparisons})
}

// DELETE /api/v1/comparisons
func (s *Server) handleClearComparisons(w http.ResponseWriter, r *http.Request) {
	if err := s.comparisons.Clear(r.Context()); err != nil {
		s.writeStoreErr(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleComparisonStream pushes the full comparison list over a websocket
// on connect and after every change. Client frames are read only to notice
// the close.
// GET /api/v1/comparisons/stream
func (s *Server) handleComparisonStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, unsubscribe := s.comparisons.Subscribe(ctx)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.pumpComparisons(ctx, conn, updates)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.WarnContext(ctx, "comparison stream read failed", "error", err)
			}
			break
		}
	}
	cancel()
	<-done
}

func (s *Server) pumpComparisons(ctx context.Context, conn *websocket.Conn, updates <-chan []domain.ComparisonSnapshot) {
	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(streamWriteWait))
			return
		case list, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(streamMessage{Type: "comparisons", Comparisons: list}); err != nil {
				s.logger.WarnContext(ctx, "comparison stream write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}
