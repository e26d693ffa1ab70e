package farmer

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Registrar interface {
	RegisterFarmer(ctx context.Context, id, address string) (string, error)
	Heartbeat(ctx context.Context, farmerID string) error
}

// HeartbeatService keeps the farmer's contact fresh in the bridge directory.
type HeartbeatService struct {
	bridge   Registrar
	interval time.Duration
	log      *zap.SugaredLogger
}

func NewHeartbeatService(bridge Registrar, interval time.Duration, log *zap.SugaredLogger) *HeartbeatService {
	return &HeartbeatService{
		bridge:   bridge,
		interval: interval,
		log:      log,
	}
}

// Register announces the farmer at address and stores the assigned id on f.
func (h *HeartbeatService) Register(ctx context.Context, f *Farmer, address string) error {
	id, err := h.bridge.RegisterFarmer(ctx, f.ID, address)
	if err != nil {
		return err
	}

	f.ID = id
	h.log.Infow("heartbeat", "status", "registered with bridge", "farmerID", id, "address", address)
	return nil
}

// Start reports a heartbeat for farmerID every interval until ctx is done.
func (h *HeartbeatService) Start(ctx context.Context, farmerID string) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.report(ctx, farmerID)
		case <-ctx.Done():
			return
		}
	}
}

func (h *HeartbeatService) report(ctx context.Context, farmerID string) {
	rctx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()

	if err := h.bridge.Heartbeat(rctx, farmerID); err != nil {
		h.log.Warnw("heartbeat", "status", "bridge unreachable", "farmerID", farmerID, "error", err)
	}
}
