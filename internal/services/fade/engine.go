package fade

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Output is the sink fades write into. The dmx.Transmitter satisfies it.
type Output interface {
	SetChannel(channel, value int)
	Snapshot() []byte
}

// Target names a channel and the value it should reach.
type Target struct {
	Channel int // 1-based
	Value   int
}

// channelFade tracks one channel inside an active fade.
type channelFade struct {
	channel    int
	startValue float64
	endValue   float64
}

// activeFade is one in-flight fade operation.
type activeFade struct {
	id         string
	channels   []channelFade
	startTime  time.Time
	duration   time.Duration
	easingType EasingType
	onComplete func()
}

// Engine drives timed channel transitions against a single universe. It
// keeps fractional per-channel values between ticks so a fade interrupted
// mid-flight restarts from where it actually is, not from the last whole
// byte written to the output.
type Engine struct {
	mu sync.RWMutex

	out         Output
	activeFades map[string]*activeFade

	// fractional values for channels currently under fade control
	interpolated map[int]float64

	stopChan chan struct{}
	running  bool

	updateRate time.Duration
}

// NewEngine creates a stopped engine ticking at 40Hz.
func NewEngine(out Output) *Engine {
	return &Engine{
		out:          out,
		activeFades:  make(map[string]*activeFade),
		interpolated: make(map[int]float64),
		updateRate:   25 * time.Millisecond,
	}
}

// Start launches the update loop. No-op if already running.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stopChan = make(chan struct{})
	go e.updateLoop(e.stopChan)
}

// Stop halts the update loop. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	close(e.stopChan)
}

func (e *Engine) updateLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(e.updateRate)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.processFades()
		}
	}
}

// processFades advances every active fade one tick.
func (e *Engine) processFades() {
	e.mu.Lock()

	now := time.Now()
	var completedFades []string
	var callbacks []func()

	for id, fade := range e.activeFades {
		elapsed := now.Sub(fade.startTime)
		progress := float64(elapsed) / float64(fade.duration)

		if progress >= 1 {
			for _, ch := range fade.channels {
				e.interpolated[ch.channel] = ch.endValue
				e.out.SetChannel(ch.channel, int(ch.endValue))
			}
			completedFades = append(completedFades, id)
			if fade.onComplete != nil {
				callbacks = append(callbacks, fade.onComplete)
			}
		} else {
			for _, ch := range fade.channels {
				current := Interpolate(ch.startValue, ch.endValue, progress, fade.easingType)
				e.interpolated[ch.channel] = current
				e.out.SetChannel(ch.channel, clamp(int(math.Round(current)), 0, 255))
			}
		}
	}

	for _, id := range completedFades {
		delete(e.activeFades, id)
	}
	e.mu.Unlock()

	// Callbacks run outside the lock so they may start new fades.
	for _, cb := range callbacks {
		cb()
	}
}

// FadeChannels starts a fade toward the given targets. Channels already
// mid-fade are taken over from their current interpolated value; any fade
// left with no channels is dropped. The fade's ID is returned (generated
// when fadeID is empty).
func (e *Engine) FadeChannels(targets []Target, duration time.Duration, fadeID string, easingType EasingType, onComplete func()) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if fadeID == "" {
		fadeID = fmt.Sprintf("fade-%d-%d", time.Now().UnixNano(), len(e.activeFades))
	}
	if easingType == "" {
		easingType = EasingInOutSine
	}

	taken := make(map[int]bool, len(targets))
	for _, target := range targets {
		taken[target.Channel] = true
	}

	// Strip conflicting channels out of existing fades so two fades never
	// fight over the same channel.
	var fadesToRemove []string
	for existingID, existingFade := range e.activeFades {
		var remaining []channelFade
		for _, ch := range existingFade.channels {
			if !taken[ch.channel] {
				remaining = append(remaining, ch)
			}
		}
		if len(remaining) == 0 {
			fadesToRemove = append(fadesToRemove, existingID)
		} else if len(remaining) < len(existingFade.channels) {
			existingFade.channels = remaining
		}
	}
	for _, id := range fadesToRemove {
		delete(e.activeFades, id)
	}

	snapshot := e.out.Snapshot()
	channels := make([]channelFade, 0, len(targets))
	for _, target := range targets {
		startValue, ok := e.interpolated[target.Channel]
		if !ok {
			if target.Channel >= 1 && target.Channel <= len(snapshot) {
				startValue = float64(snapshot[target.Channel-1])
			}
		}
		channels = append(channels, channelFade{
			channel:    target.Channel,
			startValue: startValue,
			endValue:   float64(target.Value),
		})
	}

	e.activeFades[fadeID] = &activeFade{
		id:         fadeID,
		channels:   channels,
		startTime:  time.Now(),
		duration:   duration,
		easingType: easingType,
		onComplete: onComplete,
	}

	return fadeID
}

// FadeToBlack fades every lit channel to zero.
func (e *Engine) FadeToBlack(fadeOutTime time.Duration, easingType EasingType) string {
	e.mu.RLock()
	snapshot := e.out.Snapshot()
	e.mu.RUnlock()

	var targets []Target
	for i, value := range snapshot {
		if value > 0 {
			targets = append(targets, Target{Channel: i + 1, Value: 0})
		}
	}

	return e.FadeChannels(targets, fadeOutTime, "fade-to-black", easingType, nil)
}

// CancelFade removes an active fade, leaving its channels at their current
// values.
func (e *Engine) CancelFade(fadeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if fade, ok := e.activeFades[fadeID]; ok {
		for _, ch := range fade.channels {
			delete(e.interpolated, ch.channel)
		}
		delete(e.activeFades, fadeID)
	}
}

// CancelAllFades drops every active fade.
func (e *Engine) CancelAllFades() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.interpolated = make(map[int]float64)
	e.activeFades = make(map[string]*activeFade)
}

// IsRunning reports whether the update loop is active.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// ActiveFadeCount returns the number of in-flight fades.
func (e *Engine) ActiveFadeCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.activeFades)
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
