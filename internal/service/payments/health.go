package payments

import (
	"context"
	"time"

	"github.com/myanjobs/payments/internal/domain"
	"github.com/myanjobs/payments/internal/logging"
)

// GetProviderHealth probes every registered provider. An unhealthy
// provider is a report entry, never an error: the endpoint must answer
// even when every network is down.
func (s *Service) GetProviderHealth(ctx context.Context) []domain.ProviderHealth {
	log := logging.FromContext(ctx)

	names := s.providers.Names()
	reports := make([]domain.ProviderHealth, 0, len(names))
	for _, name := range names {
		adapter, err := s.providers.Get(name)
		if err != nil {
			continue
		}

		report := domain.ProviderHealth{
			Provider:  name,
			CheckedAt: time.Now().UTC(),
		}

		pctx, cancel := s.providerCtx(ctx)
		start := time.Now()
		err = adapter.HealthCheck(pctx)
		cancel()

		report.LatencyMS = time.Since(start).Milliseconds()
		if err != nil {
			report.Error = err.Error()
			log.Warn("provider health check failed",
				"provider", name,
				"latency_ms", report.LatencyMS,
				"error", err,
			)
		} else {
			report.Healthy = true
		}

		s.providers.SetHealth(name, report.Healthy, report.CheckedAt)
		reports = append(reports, report)
	}
	return reports
}
