package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/LexiconIndonesia/media-render-service/common"
	"github.com/LexiconIndonesia/media-render-service/common/utils"
	"github.com/LexiconIndonesia/media-render-service/common/work"
	"github.com/go-chi/chi/v5"
)

// Pinger is a dependency whose reachability can be checked
type Pinger interface {
	Ping(ctx context.Context) error
}

// BrokerState reports the broker connection. *messaging.NatsBroker implements it.
type BrokerState interface {
	IsConnected() bool
}

// WorkerState exposes dispatcher occupancy. *dispatch.Dispatcher implements it.
type WorkerState interface {
	Stats() work.PoolStats
	Slots() []work.SlotInfo
	Active() []string
}

// LeaseState lists the cross-process job leases. *work.LeaseManager implements it.
type LeaseState interface {
	Owner() string
	ListLeased(ctx context.Context) ([]string, error)
	Holder(ctx context.Context, jobID string) (string, error)
}

// HealthDeps are the components reported on. Nil members are reported as disabled.
type HealthDeps struct {
	Database Pinger
	Cache    Pinger
	Broker   BrokerState
	Workers  WorkerState
	Leases   LeaseState
}

type HealthHandler struct {
	deps   HealthDeps
	router *chi.Mux
}

func NewHealthHandler(deps HealthDeps) *HealthHandler {
	h := &HealthHandler{deps: deps}

	r := chi.NewRouter()
	r.Get("/", h.handleHealthCheck)
	r.Get("/database", h.handleDatabaseHealth)
	r.Get("/cache", h.handleCacheHealth)
	r.Get("/broker", h.handleBrokerHealth)
	r.Get("/workers", h.handleWorkersHealth)

	h.router = r
	return h
}

func (h *HealthHandler) Router() *chi.Mux {
	return h.router
}

// @Summary Service health
// @Tags    health
// @Produce json
// @Success 200 {object} models.BaseResponse
// @Router  /health [get]
func (h *HealthHandler) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   common.AppName,
	}

	utils.WriteJSON(w, http.StatusOK, response)
}

func (h *HealthHandler) handleDatabaseHealth(w http.ResponseWriter, r *http.Request) {
	h.writePing(w, r, "database", h.deps.Database)
}

func (h *HealthHandler) handleCacheHealth(w http.ResponseWriter, r *http.Request) {
	h.writePing(w, r, "cache", h.deps.Cache)
}

func (h *HealthHandler) writePing(w http.ResponseWriter, r *http.Request, name string, p Pinger) {
	if p == nil {
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "disabled",
			"timestamp": time.Now().UTC(),
			name:        map[string]interface{}{"status": "disabled"},
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	component := map[string]interface{}{"status": "healthy"}
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		name:        component,
	}

	if err := p.Ping(ctx); err != nil {
		response["status"] = "unhealthy"
		component["status"] = "unhealthy"
		component["error"] = err.Error()
		utils.WriteJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	utils.WriteJSON(w, http.StatusOK, response)
}

func (h *HealthHandler) handleBrokerHealth(w http.ResponseWriter, r *http.Request) {
	if h.deps.Broker == nil {
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "disabled"})
		return
	}

	if !h.deps.Broker.IsConnected() {
		utils.WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"timestamp": time.Now().UTC(),
		})
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (h *HealthHandler) handleWorkersHealth(w http.ResponseWriter, r *http.Request) {
	if h.deps.Workers == nil {
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "disabled"})
		return
	}

	body := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"pool":      h.deps.Workers.Stats(),
		"slots":     h.deps.Workers.Slots(),
		"active":    h.deps.Workers.Active(),
	}
	if h.deps.Leases != nil {
		leases, err := h.leaseHolders(r.Context())
		if err != nil {
			utils.WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		body["lease_owner"] = h.deps.Leases.Owner()
		body["leases"] = leases
	}
	utils.WriteJSON(w, http.StatusOK, body)
}

// leaseHolders maps every leased job id to the process holding it
func (h *HealthHandler) leaseHolders(ctx context.Context) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ids, err := h.deps.Leases.ListLeased(ctx)
	if err != nil {
		return nil, err
	}
	holders := make(map[string]string, len(ids))
	for _, id := range ids {
		owner, err := h.deps.Leases.Holder(ctx, id)
		if err != nil {
			return nil, err
		}
		// expired between the scan and the read
		if owner != "" {
			holders[id] = owner
		}
	}
	return holders, nil
}
