package obs

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// OrderRecalculationsTotal counts recalculation pipeline runs by trigger
	// and outcome.
	OrderRecalculationsTotal *prometheus.CounterVec
	// OrderRecalculationDuration records pipeline latency in milliseconds.
	OrderRecalculationDuration *prometheus.HistogramVec
	// PromotionApplicationsTotal counts promotions that changed an order.
	PromotionApplicationsTotal prometheus.Counter
	// PromotionSweepDisabledTotal counts promotions disabled by the periodic sweep.
	PromotionSweepDisabledTotal prometheus.Counter
	// CurrencyMismatchesTotal counts rejected cross-currency operations.
	CurrencyMismatchesTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		OrderRecalculationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_recalculations_total",
			Help:      "Count of order recalculation runs by trigger and outcome.",
		}, []string{"trigger", "result"})
		OrderRecalculationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_recalculation_duration_ms",
			Help:      "Latency of order recalculation runs in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"trigger"})
		PromotionApplicationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotion_applications_total",
			Help:      "Number of promotion applications that changed an order.",
		})
		PromotionSweepDisabledTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotion_sweep_disabled_total",
			Help:      "Number of promotions disabled by the periodic sweep.",
		})
		CurrencyMismatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "currency_mismatches_total",
			Help:      "Number of operations rejected for mixing currencies.",
		})

		mustRegisterCollector(reg, OrderRecalculationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrderRecalculationsTotal = v
			}
		})
		mustRegisterCollector(reg, OrderRecalculationDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				OrderRecalculationDuration = v
			}
		})
		mustRegisterCollector(reg, PromotionApplicationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				PromotionApplicationsTotal = v
			}
		})
		mustRegisterCollector(reg, PromotionSweepDisabledTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				PromotionSweepDisabledTotal = v
			}
		})
		mustRegisterCollector(reg, CurrencyMismatchesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				CurrencyMismatchesTotal = v
			}
		})
	})
}

// ObserveRecalculation records one pipeline run. Safe to call before the
// collectors are registered.
func ObserveRecalculation(trigger, result string, duration time.Duration) {
	if OrderRecalculationsTotal != nil {
		OrderRecalculationsTotal.WithLabelValues(trigger, result).Inc()
	}
	if OrderRecalculationDuration != nil {
		OrderRecalculationDuration.WithLabelValues(trigger).Observe(float64(duration.Milliseconds()))
	}
}

// ObservePromotionApplications adds to the application counter. Safe to call
// before the collectors are registered.
func ObservePromotionApplications(count int) {
	if PromotionApplicationsTotal != nil && count > 0 {
		PromotionApplicationsTotal.Add(float64(count))
	}
}

// ObservePromotionSweep records how many promotions a sweep disabled. Safe to
// call before the collectors are registered.
func ObservePromotionSweep(disabled int64) {
	if PromotionSweepDisabledTotal != nil && disabled > 0 {
		PromotionSweepDisabledTotal.Add(float64(disabled))
	}
}

// ObserveCurrencyMismatch counts one rejected cross-currency operation. Safe
// to call before the collectors are registered.
func ObserveCurrencyMismatch() {
	if CurrencyMismatchesTotal != nil {
		CurrencyMismatchesTotal.Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
