package repository

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/karoba/wellness/internal/domain"
)

var interestsDecodeFailures = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "karoba",
	Subsystem: "store",
	Name:      "interests_decode_failures_total",
	Help:      "Stored interests values that could not be decoded and were read as empty",
})

func init() {
	prometheus.MustRegister(interestsDecodeFailures)
}

// DecodeInterests reads a stored interests value. Malformed data yields an
// empty list, a warning and a metric increment instead of an error.
func DecodeInterests(logger *slog.Logger, accountID, raw string) []string {
	interests, err := domain.DecodeInterests(raw)
	if err == nil {
		return interests
	}
	interestsDecodeFailures.Inc()
	if logger != nil {
		logger.Warn("stored interests unreadable, using empty list", "user_id", accountID, "error", err)
	}
	return []string{}
}
