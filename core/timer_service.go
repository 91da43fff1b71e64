package core

// SchedulerTimer implements TimerService on top of the cooperative timer
// list. The handler runs from ProcessTimers on the main loop, so it never
// preempts a command handler in the middle of a bus transaction.
type SchedulerTimer struct {
	timer    Timer
	periodUs uint32
	handler  func()
	running  bool
}

// NewSchedulerTimer returns a stopped timer with no handler.
func NewSchedulerTimer() *SchedulerTimer {
	st := &SchedulerTimer{}
	st.timer.Handler = st.fire
	return st
}

func (st *SchedulerTimer) Initialize(periodUs uint32) {
	st.SetPeriod(periodUs)
	st.Restart()
}

func (st *SchedulerTimer) SetPeriod(periodUs uint32) {
	if periodUs == 0 {
		periodUs = 1
	}
	st.periodUs = periodUs
}

func (st *SchedulerTimer) Stop() {
	DeleteTimer(&st.timer)
	st.running = false
}

func (st *SchedulerTimer) Restart() {
	DeleteTimer(&st.timer)
	st.running = true
	st.timer.WakeTime = GetTime() + TimerFromUS(st.periodUs)
	ScheduleTimer(&st.timer)
}

func (st *SchedulerTimer) AttachInterrupt(handler func()) {
	st.handler = handler
}

func (st *SchedulerTimer) DetachInterrupt() {
	st.handler = nil
}

// Period returns the configured period in microseconds.
func (st *SchedulerTimer) Period() uint32 {
	return st.periodUs
}

// Running reports whether the timer is queued.
func (st *SchedulerTimer) Running() bool {
	return st.running
}

func (st *SchedulerTimer) fire(t *Timer) uint8 {
	if !st.running {
		return SF_DONE
	}
	if st.handler != nil {
		st.handler()
		if !st.running {
			return SF_DONE
		}
	}
	t.WakeTime += TimerFromUS(st.periodUs)
	return SF_RESCHEDULE
}
