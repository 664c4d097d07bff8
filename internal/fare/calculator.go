package fare

import (
	"math"

	"sokoni/internal/config"
)

// Breakdown is the delivery fare split into its components. All amounts are
// integer minor currency units. When IsFreeDelivery is set, Total is zero
// and no other component is computed.
type Breakdown struct {
	BaseFare       int64 `json:"base_fare"`
	DistanceFare   int64 `json:"distance_fare"`
	SurgeFare      int64 `json:"surge_fare"`
	SmallOrderFee  int64 `json:"small_order_fee"`
	ExpressFee     int64 `json:"express_fee"`
	HeavyItemFee   int64 `json:"heavy_item_fee"`
	Discount       int64 `json:"discount"`
	Total          int64 `json:"total"`
	IsFreeDelivery bool  `json:"is_free_delivery"`
}

// Input carries the per-order facts the fare depends on. Hour is optional;
// when nil no time-based surge applies.
type Input struct {
	DistanceKm  float64
	Subtotal    int64
	Hour        *int
	IsExpress   bool
	WeightGrams int64
}

// Estimate is a delivery time window in minutes.
type Estimate struct {
	MinMinutes int `json:"min_minutes"`
	MaxMinutes int `json:"max_minutes"`
}

const (
	heavyWeightThresholdGrams = 10000
	heavyFeePerKg             = 200
	expressFeeFactor          = 0.5
)

// Calculator computes delivery fares from the configured rate card.
type Calculator struct {
	cfg config.FareConfig
}

// NewCalculator creates a fare calculator
func NewCalculator(cfg config.FareConfig) *Calculator {
	return &Calculator{cfg: cfg}
}

// Quote produces the fare breakdown for one delivery.
func (c *Calculator) Quote(in Input) Breakdown {
	if c.cfg.FreeDeliveryThreshold > 0 && in.Subtotal >= c.cfg.FreeDeliveryThreshold {
		return Breakdown{IsFreeDelivery: true}
	}

	b := Breakdown{BaseFare: c.cfg.BaseFare}
	b.DistanceFare = int64(math.Round(in.DistanceKm * float64(c.cfg.PerKmRate)))

	surge := timeSurge(in.Hour)
	if c.cfg.SurgeMultiplier > surge {
		surge = c.cfg.SurgeMultiplier
	}
	if surge > 1.0 {
		b.SurgeFare = int64(math.Round(float64(b.BaseFare+b.DistanceFare) * (surge - 1)))
	}

	if c.cfg.SmallOrderThreshold > 0 && in.Subtotal < c.cfg.SmallOrderThreshold {
		b.SmallOrderFee = c.cfg.SmallOrderFee
	}

	if in.IsExpress {
		b.ExpressFee = int64(math.Round(float64(b.BaseFare+b.DistanceFare) * expressFeeFactor))
	}

	if in.WeightGrams > heavyWeightThresholdGrams {
		excessKg := float64(in.WeightGrams-heavyWeightThresholdGrams) / 1000
		b.HeavyItemFee = int64(math.Round(excessKg * heavyFeePerKg))
	}

	b.Total = b.BaseFare + b.DistanceFare + b.SurgeFare + b.SmallOrderFee +
		b.ExpressFee + b.HeavyItemFee + b.Discount

	if b.Total < c.cfg.MinimumFare {
		b.Total = c.cfg.MinimumFare
	}
	if c.cfg.MaximumFare > 0 && b.Total > c.cfg.MaximumFare {
		b.Total = c.cfg.MaximumFare
	}

	return b
}

// EstimateDeliveryTime returns the expected delivery window for a distance.
// Express orders get a shorter prep time and a faster average speed.
func EstimateDeliveryTime(distanceKm float64, isExpress bool) Estimate {
	prepMinutes := 15.0
	speedKmh := 20.0
	if isExpress {
		prepMinutes = 5.0
		speedKmh = 30.0
	}

	travel := distanceKm / speedKmh * 60
	return Estimate{
		MinMinutes: int(math.Round(prepMinutes + travel)),
		MaxMinutes: int(math.Round(prepMinutes + 1.5*travel)),
	}
}

// timeSurge returns the multiplier for the given hour of day.
func timeSurge(hour *int) float64 {
	if hour == nil {
		return 1.0
	}
	h := *hour
	switch {
	case h >= 22 || h < 5:
		return 1.5 // late night
	case h >= 7 && h < 9:
		return 1.3 // morning rush
	case h >= 12 && h < 14:
		return 1.2 // lunch
	case h >= 17 && h < 20:
		return 1.4 // evening rush
	default:
		return 1.0
	}
}
