package tracker

import "sync"

// Log is the append-only execution record. Presentation signals are dropped.
type Log struct {
	mu     sync.RWMutex
	events []Event
}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) Handle(e Event) {
	if e.Kind.IsSignal() {
		return
	}
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (l *Log) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

func (l *Log) Summary() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var s Summary
	for _, e := range l.events {
		switch e.Kind {
		case AgentComplete:
			s.Completed++
		case AgentFail:
			s.Failed++
		}
		if e.DurationMs != nil {
			s.TotalDurationMs += *e.DurationMs
		}
	}
	s.Total = s.Completed + s.Failed
	return s
}
