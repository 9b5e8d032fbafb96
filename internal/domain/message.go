package domain

import "time"

// Message is one candidate mail as handed over by a mail source.
type Message struct {
	ID         string
	Sender     string
	Subject    string
	Body       string
	ReceivedAt int64 // epoch ms, UTC
}

// Received returns ReceivedAt as a time.Time in loc. Zero time when unknown.
func (m Message) Received(loc *time.Location) time.Time {
	if m.ReceivedAt <= 0 {
		return time.Time{}
	}
	t := time.UnixMilli(m.ReceivedAt).UTC()
	if loc != nil {
		t = t.In(loc)
	}
	return t
}
