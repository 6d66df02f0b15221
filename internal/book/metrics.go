package book

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var adjustmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "catalog_availability_adjustments_total",
	Help: "Availability adjustments by outcome.",
}, []string{"result"})

func adjustmentResult(err error) string {
	switch KindOf(err) {
	case KindInsufficientCopies:
		return "insufficient_copies"
	case KindInvalidAdjustment:
		return "invalid_adjustment"
	case KindNotFound:
		return "not_found"
	default:
		return "error"
	}
}
