package activity

import (
	"context"
	"sync"
)

// Journal keeps the events it is notified of in memory. It backs in-game save
// history views and test assertions.
type Journal struct {
	// Err is returned from every Notify after the event is recorded.
	Err error
	// Limit caps the number of kept events; older ones are dropped first.
	Limit int

	mu     sync.Mutex
	events []Event
}

func (j *Journal) Notify(_ context.Context, event Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, NormalizeEvent(event))
	if j.Limit > 0 && len(j.events) > j.Limit {
		j.events = append(j.events[:0:0], j.events[len(j.events)-j.Limit:]...)
	}
	return j.Err
}

// Events returns a copy of the recorded events, oldest first.
func (j *Journal) Events() []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Event(nil), j.events...)
}

// Verbs lists the verbs of the recorded events in order.
func (j *Journal) Verbs() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.events))
	for _, event := range j.events {
		out = append(out, event.Verb)
	}
	return out
}

// History returns the events recorded for one save.
func (j *Journal) History(saveID string) []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []Event
	for _, event := range j.events {
		if event.ObjectType == ObjectTypeSave && event.ObjectID == saveID {
			out = append(out, event)
		}
	}
	return out
}

// Last returns the most recent event with verb.
func (j *Journal) Last(verb string) (Event, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := len(j.events) - 1; i >= 0; i-- {
		if j.events[i].Verb == verb {
			return j.events[i], true
		}
	}
	return Event{}, false
}

// Reason is the rejection or substitution reason carried by event, if any.
func Reason(event Event) string {
	reason, _ := event.Metadata["reason"].(string)
	return reason
}
