// Package hardware drives the bin's proximity input and indicator LEDs.
package hardware

import (
	"errors"
	"fmt"
)

// ErrHardware reports a GPIO or peripheral failure.
var ErrHardware = errors.New("hardware failure")

// LED names one of the indicator lights.
type LED int

const (
	StatusLED LED = iota
	RecyclableLED
	NonRecyclableLED
)

func (l LED) String() string {
	switch l {
	case StatusLED:
		return "status"
	case RecyclableLED:
		return "recyclable"
	case NonRecyclableLED:
		return "nonrecyclable"
	default:
		return fmt.Sprintf("led(%d)", int(l))
	}
}

// Sensor reports whether an object is in front of the bin.
type Sensor interface {
	ObjectNear() (bool, error)
}

// Indicators switches LEDs on and off.
type Indicators interface {
	SetLED(led LED, on bool) error
}

// Board is the full hardware surface used by the control loop.
type Board interface {
	Sensor
	Indicators
	Close() error
}

// AllOff switches every indicator off, returning the first error.
func AllOff(ind Indicators) error {
	var first error
	for _, led := range []LED{StatusLED, RecyclableLED, NonRecyclableLED} {
		if err := ind.SetLED(led, false); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// composite pairs a sensor with a separate LED driver.
type composite struct {
	sensor  Sensor
	leds    Indicators
	closers []func() error
}

// Compose builds a Board from an input source and an LED driver. Closers run
// in order on Close.
func Compose(sensor Sensor, leds Indicators, closers ...func() error) Board {
	return &composite{sensor: sensor, leds: leds, closers: closers}
}

func (c *composite) ObjectNear() (bool, error) { return c.sensor.ObjectNear() }

func (c *composite) SetLED(led LED, on bool) error { return c.leds.SetLED(led, on) }

func (c *composite) Close() error {
	err := AllOff(c.leds)
	for _, closeFn := range c.closers {
		if cerr := closeFn(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
