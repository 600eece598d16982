// Package sensor defines the measurement sources the gateway publishes
// from. Readings use integer tenths so they survive JSON round-trips
// without float formatting surprises.
package sensor

import (
	"context"
	"errors"
	"time"
)

// ErrNotReady is returned when a source is polled faster than its minimum
// interval allows.
var ErrNotReady = errors.New("sensor not ready")

// Reading is one combined measurement.
type Reading struct {
	// TempTenths is the temperature in tenths of a degree Celsius.
	TempTenths int
	// HumidityTenths is the relative humidity in tenths of a percent.
	HumidityTenths int
	// Light is the ambient light level on a raw 0..4095 scale.
	Light int
	// Taken is when the measurement was made.
	Taken time.Time
}

// TempC returns the temperature as degrees Celsius.
func (r Reading) TempC() float64 { return float64(r.TempTenths) / 10 }

// HumidityPct returns the relative humidity as a percentage.
func (r Reading) HumidityPct() float64 { return float64(r.HumidityTenths) / 10 }

// TempHumidity measures temperature and humidity. Implementations enforce
// their own minimum poll interval and return ErrNotReady when polled too
// soon.
type TempHumidity interface {
	ReadTempHumidity(ctx context.Context) (tempTenths, humidityTenths int, err error)
}

// Light measures ambient light level.
type Light interface {
	ReadLight(ctx context.Context) (int, error)
}
