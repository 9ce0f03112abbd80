package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rickgao/auction-house/internal/agent"
	"github.com/rickgao/auction-house/internal/auction"
	"github.com/rickgao/auction-house/internal/bank"
	"github.com/rickgao/auction-house/internal/journal"
	"github.com/rickgao/auction-house/internal/server"
	"github.com/rickgao/auction-house/internal/sweep"
	"github.com/rickgao/auction-house/internal/version"
)

// pinger is satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler serves /health and /debug/items. Optional components
// are nil when disabled.
type healthHandler struct {
	houseID string
	house   *auction.House
	agents  *agent.Registry
	server  *server.Server
	sweeper *sweep.Sweeper
	outbox  *bank.Outbox
	journal *journal.Writer
	db      pinger
}

func (h *healthHandler) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.health)
	mux.HandleFunc("/debug/items", h.items)
	return mux
}

func (h *healthHandler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := struct {
		Status     string                 `json:"status"`
		HouseID    string                 `json:"house_id"`
		Version    map[string]string      `json:"version"`
		Components map[string]interface{} `json:"components"`
	}{
		Status:     "healthy",
		HouseID:    h.houseID,
		Version:    version.Info(),
		Components: make(map[string]interface{}),
	}

	health.Components["auction"] = map[string]interface{}{
		"open_items":  len(h.house.List()),
		"high_bids":   h.house.Ledger().Len(),
		"deadlines":   h.sweeper.Pending(),
		"closed":      h.sweeper.Stats(),
		"connections": h.server.Stats(),
	}
	health.Components["agents"] = map[string]interface{}{
		"connected": h.agents.Len(),
	}

	if h.outbox != nil {
		health.Components["bank"] = map[string]interface{}{
			"pending":   h.outbox.Pending(),
			"delivered": h.outbox.Delivered(),
			"failures":  h.outbox.Failures(),
		}
	} else {
		health.Components["bank"] = "disabled"
	}

	if h.journal != nil {
		status := map[string]interface{}{
			"pending": h.journal.Pending(),
			"stats":   h.journal.Stats(),
		}
		if h.db != nil {
			if err := h.db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				status["database"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				status["database"] = "connected"
			}
		}
		health.Components["journal"] = status
	} else {
		health.Components["journal"] = "disabled"
	}

	w.Header().Set("Content-Type", "application/json")
	if health.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}

// itemView is the JSON shape of an open item.
type itemView struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	MinimumBid int64      `json:"minimum_bid"`
	CurrentBid int64      `json:"current_bid"`
	HighBidder string     `json:"high_bidder,omitempty"`
	Deadline   *time.Time `json:"deadline,omitempty"`
}

func (h *healthHandler) items(w http.ResponseWriter, r *http.Request) {
	items := h.house.List()

	views := make([]itemView, 0, len(items))
	for _, item := range items {
		v := itemView{
			ID:         int64(item.ID),
			Name:       item.Name,
			MinimumBid: item.MinimumBid,
			CurrentBid: item.CurrentBid,
		}
		if b, ok := h.house.Ledger().HighBidder(item.ID); ok {
			v.HighBidder = string(b.Agent)
		}
		if item.Started() {
			d := item.Deadline(h.house.Window())
			v.Deadline = &d
		}
		views = append(views, v)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"count": len(views),
		"items": views,
	})
}
