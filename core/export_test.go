package core

// QueuedTimers returns the number of scheduled timers.
func QueuedTimers() int {
	n := 0
	for t := timerList; t != nil; t = t.Next {
		n++
	}
	return n
}
