package service

import "time"

// Clock supplies the current time to the ledgers.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}
