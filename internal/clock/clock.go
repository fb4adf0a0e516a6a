package clock

import "time"

type Clock interface {
	Now() time.Time
}

type System struct{}

// Now is truncated to the millisecond precision the store keeps.
func (System) Now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

func New() Clock { return System{} }
