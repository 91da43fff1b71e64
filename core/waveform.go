package core

import "math"

// maxHalfPeriod is the longest toggle period in microseconds. Wake times
// are compared by signed difference, so a period must stay below 2^31
// ticks.
const maxHalfPeriod = math.MaxInt32 / (TimerFreq / 1000000)

// WaveformController generates the AC excitation by toggling the blanking
// line from a periodic timer.
//
// It owns the timer handler: the toggle is attached when the controller is
// built and detached by Close.
type WaveformController struct {
	gpio  GPIODriver
	blank GPIOPin
	timer TimerService
	cfg   *BoardConfig

	frequency  float32
	halfPeriod uint32 // microseconds, 0 when stopped
}

// NewWaveformController attaches the toggle to timer. Frequency limits are
// read from cfg on every request so configuration updates apply at once.
func NewWaveformController(gpio GPIODriver, blank GPIOPin, timer TimerService, cfg *BoardConfig) *WaveformController {
	w := &WaveformController{gpio: gpio, blank: blank, timer: timer, cfg: cfg}
	timer.AttachInterrupt(w.Toggle)
	return w
}

// SetFrequency changes the waveform frequency in Hz. Zero selects DC mode:
// the toggle stops and the blanking line is held high (not blanked).
// Frequencies outside the configured limits are rejected with no change.
func (w *WaveformController) SetFrequency(f float32) error {
	if !(f >= w.cfg.MinWaveformFrequency && f <= w.cfg.MaxWaveformFrequency) {
		return ErrOutOfRange
	}
	if f == 0 {
		w.timer.Stop()
		w.frequency = 0
		w.halfPeriod = 0
		return w.gpio.SetPin(w.blank, true)
	}

	period := 500000 / float64(f)
	if period > maxHalfPeriod {
		return ErrOutOfRange
	}
	half := uint32(period)
	if half == 0 {
		half = 1
	}
	w.timer.SetPeriod(half)
	w.timer.Restart()
	w.frequency = f
	w.halfPeriod = half
	return nil
}

// Toggle inverts the blanking line. It is the timer handler and must stay
// allocation free.
func (w *WaveformController) Toggle() {
	level, err := w.gpio.GetPin(w.blank)
	if err != nil {
		return
	}
	w.gpio.SetPin(w.blank, !level)
}

// Frequency returns the last accepted frequency.
func (w *WaveformController) Frequency() float32 {
	return w.frequency
}

// HalfPeriod returns the toggle period in microseconds, or 0 in DC mode.
func (w *WaveformController) HalfPeriod() uint32 {
	return w.halfPeriod
}

// Running reports whether the toggle is active.
func (w *WaveformController) Running() bool {
	return w.halfPeriod != 0
}

// Close stops the toggle and releases the timer.
func (w *WaveformController) Close() {
	w.timer.Stop()
	w.timer.DetachInterrupt()
}
