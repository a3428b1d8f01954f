package session

import "time"

// Listener receives decoded domain events. Calls come from link goroutines and
// are never made while the controller holds its lock.
type Listener interface {
	DateUpdate(t time.Time)
	TemperatureUpdate(celsius float64)
	ClickCountUpdate(count int)
}

// ListenerFuncs adapts optional functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	OnDate        func(time.Time)
	OnTemperature func(float64)
	OnClickCount  func(int)
}

func (f ListenerFuncs) DateUpdate(t time.Time) {
	if f.OnDate != nil {
		f.OnDate(t)
	}
}

func (f ListenerFuncs) TemperatureUpdate(celsius float64) {
	if f.OnTemperature != nil {
		f.OnTemperature(celsius)
	}
}

func (f ListenerFuncs) ClickCountUpdate(count int) {
	if f.OnClickCount != nil {
		f.OnClickCount(count)
	}
}

// NopListener ignores every event.
type NopListener struct{}

func (NopListener) DateUpdate(time.Time)      {}
func (NopListener) TemperatureUpdate(float64) {}
func (NopListener) ClickCountUpdate(int)      {}
