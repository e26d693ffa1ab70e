package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pyropy/dsn/core/audit"
	"github.com/pyropy/dsn/core/model"
	"github.com/pyropy/dsn/core/queue"
)

const contentTypeJSON = "application/json"

type queueLengths interface {
	Len(ctx context.Context, p queue.Partition) (int64, error)
}

type contractLister interface {
	All(ctx context.Context) ([]model.Contract, error)
}

type workerState interface {
	State() audit.State
}

type monitorState interface {
	Replicating() int
}

type StatusServer struct {
	store     queueLengths
	contracts contractLister
	worker    workerState
	monitor   monitorState
}

func NewStatusServer(store queueLengths, contracts contractLister, worker workerState, monitor monitorState) *StatusServer {
	return &StatusServer{
		store:     store,
		contracts: contracts,
		worker:    worker,
		monitor:   monitor,
	}
}

func (s *StatusServer) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/queue", s.handleQueue)
	r.Get("/contracts", s.handleContracts)

	return r
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"worker":      s.worker.State().String(),
		"replicating": s.monitor.Replicating(),
	})
}

func (s *StatusServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	lengths := make(map[queue.Partition]int64, 3)
	for _, p := range []queue.Partition{queue.Pending, queue.Ready, queue.Final} {
		n, err := s.store.Len(r.Context(), p)
		if err != nil {
			log.Errorw("status", "status", "queue length failed", "partition", p, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		lengths[p] = n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"worker":     s.worker.State().String(),
		"partitions": lengths,
	})
}

func (s *StatusServer) handleContracts(w http.ResponseWriter, r *http.Request) {
	all, err := s.contracts.All(r.Context())
	if err != nil {
		log.Errorw("status", "status", "contract listing failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	valid := 0
	farmers := make(map[string]struct{})
	for _, c := range all {
		if c.Invalidated {
			continue
		}
		valid++
		farmers[c.FarmerID] = struct{}{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":       len(all),
		"valid":       valid,
		"invalidated": len(all) - valid,
		"farmers":     len(farmers),
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warnw("status", "status", "write response failed", "error", err)
	}
}
