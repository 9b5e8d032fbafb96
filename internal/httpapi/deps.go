package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"placement-engine/internal/events"
)

type Deps struct {
	Tracker  *Tracker
	Hub      *events.Hub
	Gatherer prometheus.Gatherer // nil disables /metrics
	Log      *zap.Logger
}
