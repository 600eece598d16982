package sensor

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// minPollInterval is how often a combined sensor can deliver a fresh
// reading. The interval matches typical one-wire temperature sensors, which
// need about two seconds between conversions.
const minPollInterval = 2 * time.Second

// Simulated produces plausible indoor readings with a slow random walk.
// It implements both TempHumidity and Light and is safe for concurrent use.
type Simulated struct {
	mu       sync.Mutex
	rng      *rand.Rand
	lastPoll time.Time

	tempTenths     int
	humidityTenths int
	light          int
}

// NewSimulated seeds a simulated sensor. A zero seed uses the current time.
func NewSimulated(seed int64) *Simulated {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulated{
		rng:            rand.New(rand.NewSource(seed)),
		tempTenths:     215,
		humidityTenths: 450,
		light:          1800,
	}
}

// ReadTempHumidity returns the current simulated temperature and humidity.
// It returns ErrNotReady when called again within the minimum poll
// interval.
func (s *Simulated) ReadTempHumidity(ctx context.Context) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if !s.lastPoll.IsZero() && now.Sub(s.lastPoll) < minPollInterval {
		return 0, 0, ErrNotReady
	}
	s.lastPoll = now

	s.tempTenths = walk(s.rng, s.tempTenths, 3, 150, 350)
	s.humidityTenths = walk(s.rng, s.humidityTenths, 5, 200, 800)
	return s.tempTenths, s.humidityTenths, nil
}

// ReadLight returns the current simulated ambient light level.
func (s *Simulated) ReadLight(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.light = walk(s.rng, s.light, 40, 0, 4095)
	return s.light, nil
}

func walk(rng *rand.Rand, value, step, min, max int) int {
	value += rng.Intn(2*step+1) - step
	if value < min {
		value = min
	}
	if value > max {
		value = max
	}
	return value
}
