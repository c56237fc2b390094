package heading

import "time"

// Animation defaults.
const (
	DefaultDuration     = 500 * time.Millisecond
	DefaultTickInterval = 20 * time.Millisecond
)

// AnimatorConfig holds the constructor constants of a RotationAnimator.
type AnimatorConfig struct {
	// Duration of one transition.
	Duration time.Duration

	// TickInterval is the cadence the scheduler should call Tick at while
	// IsRunning reports true. The animator itself only uses timestamps.
	TickInterval time.Duration

	// Easing shapes the motion. Nil selects SineOut.
	Easing Easing
}

// DefaultAnimatorConfig returns the stock 500 ms / 20 ms sine-eased setup.
func DefaultAnimatorConfig() AnimatorConfig {
	return AnimatorConfig{
		Duration:     DefaultDuration,
		TickInterval: DefaultTickInterval,
		Easing:       SineOut,
	}
}

// RotationAnimator turns successive target headings into a timed, eased,
// shortest-path rotation.
//
// States:
//   - Idle: Tick returns the resting display angle.
//   - Animating: Tick interpolates between start and target.
//
// Retarget moves Idle -> Animating, or restarts an ongoing animation from the
// angle currently displayed. Tick moves Animating -> Idle once the duration
// has elapsed.
//
// Calling Tick before any Retarget, or from more than one goroutine, is
// undefined.
type RotationAnimator struct {
	cfg AnimatorConfig

	start     float64
	target    float64 // may lie outside [0,360) after shortest-arc resolution
	rest      float64 // target reduced into [0,360) before resolution
	display   float64
	startedAt time.Time
	running   bool
}

// NewRotationAnimator returns an idle animator resting at 0 degrees.
// Zero config fields take their defaults.
func NewRotationAnimator(cfg AnimatorConfig) *RotationAnimator {
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Easing == nil {
		cfg.Easing = SineOut
	}
	return &RotationAnimator{cfg: cfg}
}

// Retarget starts a transition toward h at now. It returns false, leaving
// all state untouched, when h equals the angle currently displayed.
//
// The new transition always begins at the displayed angle (brought up to
// date at now if an animation is in flight), never at the previous start, so
// retargeting mid-flight does not jump.
func (a *RotationAnimator) Retarget(h float64, now time.Time) bool {
	if a.running {
		a.advance(now)
	}
	if h == a.display {
		return false
	}

	a.start = a.display
	a.rest = Normalize(h)
	a.target = ShortestTarget(a.start, h)
	a.startedAt = now
	a.running = true
	return true
}

// Tick returns the display angle for now. The final frame of a transition is
// the requested heading reduced into [0, 360), taken before the shortest-arc
// shift so no rounding creeps in; earlier frames are left unnormalized.
func (a *RotationAnimator) Tick(now time.Time) float64 {
	if !a.running {
		return a.display
	}
	a.advance(now)
	return a.display
}

func (a *RotationAnimator) advance(now time.Time) {
	elapsed := now.Sub(a.startedAt)
	if elapsed >= a.cfg.Duration {
		a.running = false
		a.display = a.rest
		return
	}

	p := float64(elapsed) / float64(a.cfg.Duration)
	if p < 0 {
		p = 0
	}
	eased := a.cfg.Easing(p)
	a.display = a.start + eased*(a.target-a.start)
}

// IsRunning reports whether further Tick calls are needed.
func (a *RotationAnimator) IsRunning() bool { return a.running }

// Display returns the angle produced by the last Retarget or Tick.
func (a *RotationAnimator) Display() float64 { return a.display }

// Start returns the first angle of the current (or last) transition.
func (a *RotationAnimator) Start() float64 { return a.start }

// Target returns the unnormalized end angle of the current (or last) transition.
func (a *RotationAnimator) Target() float64 { return a.target }

// StartedAt returns when the current (or last) transition began.
func (a *RotationAnimator) StartedAt() time.Time { return a.startedAt }

// Config returns the effective configuration.
func (a *RotationAnimator) Config() AnimatorConfig { return a.cfg }

// Needles returns the two pointers for the current display angle.
func (a *RotationAnimator) Needles() Needles { return NeedlesAt(a.display) }
