package sim

import (
	"math/rand"

	"emberfall/server/internal/telemetry"
	"emberfall/server/logging"
)

// Deps carries shared infrastructure dependencies required by the simulation
// engine.
type Deps struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	Clock     logging.Clock
	RNG       *rand.Rand
}

func (d Deps) normalized() Deps {
	normalized := d
	if normalized.Publisher == nil {
		normalized.Publisher = logging.NopPublisher()
	}
	if normalized.Clock == nil {
		normalized.Clock = logging.SystemClock{}
	}
	if normalized.RNG == nil {
		normalized.RNG = rand.New(rand.NewSource(1))
	}
	return normalized
}
