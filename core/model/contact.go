package model

import "time"

type Contact struct {
	ID         string    `json:"id"`
	Address    string    `json:"address"`
	LastSeen   time.Time `json:"lastSeen"`
	LastPinged time.Time `json:"lastPinged"`
}

// UnseenFor reports how long the contact has not been seen at now.
func (c Contact) UnseenFor(now time.Time) time.Duration {
	return now.Sub(c.LastSeen)
}
