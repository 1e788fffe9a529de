package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// FactorySet groups the counters a locker factory maintains. Register one set
// per process; factories share it safely since counters are concurrency-safe.
type FactorySet struct {
	LockersCreated  prometheus.Counter
	LockersReleased prometheus.Counter
	RewardClaims    prometheus.Counter
	LockersBurned   prometheus.Counter
}

// NewFactorySet registers the factory counters against the given registerer.
func NewFactorySet(reg prometheus.Registerer) *FactorySet {
	factory := promauto.With(reg)
	return &FactorySet{
		LockersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "juzu_factory_lockers_created_total",
			Help: "Number of lockers instantiated by the factory.",
		}),
		LockersReleased: factory.NewCounter(prometheus.CounterOpts{
			Name: "juzu_factory_lockers_released_total",
			Help: "Number of lockers released through an unlock condition.",
		}),
		RewardClaims: factory.NewCounter(prometheus.CounterOpts{
			Name: "juzu_factory_reward_claims_total",
			Help: "Number of staking reward claims paid out.",
		}),
		LockersBurned: factory.NewCounter(prometheus.CounterOpts{
			Name: "juzu_factory_lockers_burned_total",
			Help: "Number of finalized lockers whose positions were burned.",
		}),
	}
}
