package observability

import (
	"context"
	"log/slog"

	"github.com/honeynil/agri-invest-service/internal/infrastructure/observability"
)

func Setup(serviceName, otlpEndpoint string, level slog.Level) func(context.Context) error {
	observability.InitLogger(level)
	observability.InitMetrics()
	return observability.InitTracing(serviceName, otlpEndpoint)
}
