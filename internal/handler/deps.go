package handler

import (
	"github.com/prometheus/client_golang/prometheus"

	"linechat/internal/app/chat"
	"linechat/internal/configs"
	"linechat/internal/pkg/limiter"
)

// AppDeps bundles what the HTTP handlers need.
type AppDeps struct {
	Manager *chat.Manager
	Config  *configs.AppConfig

	// Gatherer backs /metrics.
	Gatherer prometheus.Gatherer

	// ConnectLimiter throttles /ws upgrades per client IP. It may be nil.
	ConnectLimiter *limiter.IPRateLimiter
}
