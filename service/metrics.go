package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	nonceIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forum_nonce_issued_total",
		Help: "Number of sign-in nonces issued",
	})

	loginTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_login_total",
		Help: "Sign-in attempts by result",
	}, []string{"result"})

	sessionRestoreTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_session_restore_total",
		Help: "Session reads by result",
	}, []string{"result"})

	identityCheckTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_identity_check_total",
		Help: "Identity oracle checks by result",
	}, []string{"result"})

	identityCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "forum_identity_check_duration_seconds",
		Help:    "Latency of identity oracle checks",
		Buckets: prometheus.DefBuckets,
	})
)
