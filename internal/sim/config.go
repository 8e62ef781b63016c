// Package sim owns the per-tick train simulation: the world state, the
// command queue drained at tick boundaries, the motion integrator, and
// snapshot/restore.
package sim

// Config holds the tunable simulation parameters. Zero values are replaced
// with defaults by normalized().
type Config struct {
	// TickRate is the number of simulation ticks per second.
	TickRate int `json:"tickRate"`
	// CruiseSpeed is the target speed of a dispatched train, world units per
	// second.
	CruiseSpeed float64 `json:"cruiseSpeed"`
	// MaxAccel and MaxDecel clamp the per-second speed change.
	MaxAccel float64 `json:"maxAccel"`
	MaxDecel float64 `json:"maxDecel"`
	// TrainLength is the physical footprint length of a train in world units.
	TrainLength float64 `json:"trainLength"`
	// BrakingLookahead is the distance ahead of a train at which blocked
	// track forces braking. Must cover the full braking distance from cruise
	// speed plus one tick of travel, or the no-overlap guarantee breaks.
	BrakingLookahead float64 `json:"brakingLookahead"`
	// CommandBufferSize caps the number of staged commands per tick.
	CommandBufferSize int `json:"commandBufferSize"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{}.normalized()
}

func (c Config) normalized() Config {
	if c.TickRate <= 0 {
		c.TickRate = 15
	}
	if c.CruiseSpeed <= 0 {
		c.CruiseSpeed = 2.0
	}
	if c.MaxAccel <= 0 {
		c.MaxAccel = 1.0
	}
	if c.MaxDecel <= 0 {
		c.MaxDecel = 2.0
	}
	if c.TrainLength <= 0 {
		c.TrainLength = 0.5
	}
	minLookahead := c.CruiseSpeed*c.CruiseSpeed/(2*c.MaxDecel) + c.CruiseSpeed*c.tickInterval()
	if c.BrakingLookahead < minLookahead {
		c.BrakingLookahead = minLookahead
	}
	if c.CommandBufferSize <= 0 {
		c.CommandBufferSize = 256
	}
	return c
}

// tickInterval returns the fixed tick duration in seconds.
func (c Config) tickInterval() float64 {
	if c.TickRate <= 0 {
		return 1.0 / 15
	}
	return 1.0 / float64(c.TickRate)
}
