package discussion

// Countdown bounds the discussion duration in whole seconds.
type Countdown struct {
	remaining int
}

func NewCountdown(seconds int) Countdown {
	if seconds < 0 {
		seconds = 0
	}
	return Countdown{remaining: seconds}
}

// Tick consumes one second and reports whether the countdown just hit zero.
func (c *Countdown) Tick() (remaining int, expired bool) {
	if c.remaining <= 0 {
		return 0, false
	}
	c.remaining--
	return c.remaining, c.remaining == 0
}

func (c *Countdown) Remaining() int { return c.remaining }
