package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	TokensCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vident_tokens_created_total",
		Help: "Total number of token pairs minted.",
	})
	TokensRefreshedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vident_tokens_refreshed_total",
		Help: "Total number of successful refresh rotations.",
	})
	TokensRevokedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vident_tokens_revoked_total",
		Help: "Total number of token rows removed by revocation or cascade.",
	})
	TokensSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vident_tokens_swept_total",
		Help: "Total number of refresh-expired token rows removed by sweeps.",
	})
	CheckDeniedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vident_token_check_denied_total",
		Help: "Token checks that did not authorize, by reason.",
	}, []string{"reason"})
	VirtualIDsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vident_virtual_ids_created_total",
		Help: "Total number of pseudonyms minted.",
	})
	GenerationCollisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vident_generation_collisions_total",
		Help: "Generated identifiers or secrets that collided and were regenerated.",
	}, []string{"kind"})
	CascadeRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vident_cascade_runs_total",
		Help: "Cascade deletions, by target and outcome.",
	}, []string{"target", "outcome"})
)

// Register adds every collector to reg. Counters work unregistered, so tests
// and tools that never scrape can skip this.
func Register(reg prometheus.Registerer) error {
	var errs []error
	for _, c := range []prometheus.Collector{
		TokensCreatedTotal,
		TokensRefreshedTotal,
		TokensRevokedTotal,
		TokensSweptTotal,
		CheckDeniedTotal,
		VirtualIDsCreatedTotal,
		GenerationCollisionsTotal,
		CascadeRunsTotal,
	} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
