package audio

import "math"

// Limiter is a stereo-linked peak limiter. Once the envelope rises above the
// threshold the gain is pulled down so the envelope sits at the threshold;
// whatever still overshoots during the attack is clipped to [-1, 1].
type Limiter struct {
	threshold float64
	attack    float64 // coefficient
	release   float64 // coefficient
	env       float64
}

// NewLimiter builds a limiter with the threshold given in dBFS and the
// envelope times in milliseconds.
func NewLimiter(sampleRate int, thresholdDB, attackMs, releaseMs float64) *Limiter {
	sr := float64(sampleRate)
	return &Limiter{
		threshold: math.Pow(10, thresholdDB/20),
		attack:    1 - math.Exp(-1/(attackMs*sr/1000)),
		release:   1 - math.Exp(-1/(releaseMs*sr/1000)),
	}
}

func (c *Limiter) Process(l, r float32) (float32, float32) {
	peak := math.Max(math.Abs(float64(l)), math.Abs(float64(r)))
	if peak > c.env {
		c.env += c.attack * (peak - c.env)
	} else {
		c.env += c.release * (peak - c.env)
	}
	g := c.gain()
	return clip(float64(l) * g), clip(float64(r) * g)
}

func (c *Limiter) gain() float64 {
	if c.env <= c.threshold || c.threshold <= 0 {
		return 1
	}
	return c.threshold / c.env
}

func (c *Limiter) Reset() { c.env = 0 }

func clip(v float64) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return float32(v)
}
