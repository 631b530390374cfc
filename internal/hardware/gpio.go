package hardware

import (
	"fmt"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// GPIOBoard drives the Raspberry Pi header directly.
type GPIOBoard struct {
	sensor    gpio.PinIO
	activeLow bool
	leds      map[LED]gpio.PinIO
	logger    *zap.Logger
}

// OpenGPIO initialises the host drivers and configures the sensor and LED pins.
func OpenGPIO(p Pinout, logger *zap.Logger) (*GPIOBoard, error) {
	return openGPIO(p, true, logger)
}

// OpenGPIOSensor configures only the proximity input, for builds whose LEDs
// are driven elsewhere.
func OpenGPIOSensor(p Pinout, logger *zap.Logger) (*GPIOBoard, error) {
	return openGPIO(p, false, logger)
}

func openGPIO(p Pinout, withLEDs bool, logger *zap.Logger) (*GPIOBoard, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: host init: %v", ErrHardware, err)
	}

	lookup := func(n int) (gpio.PinIO, error) {
		pin := gpioreg.ByName(fmt.Sprintf("GPIO%d", n))
		if pin == nil {
			return nil, fmt.Errorf("%w: GPIO%d not found", ErrHardware, n)
		}
		return pin, nil
	}

	sensor, err := lookup(p.Sensor)
	if err != nil {
		return nil, err
	}
	leds := map[LED]gpio.PinIO{}
	if withLEDs {
		for led, n := range map[LED]int{
			StatusLED:        p.StatusLED,
			RecyclableLED:    p.RecyclableLED,
			NonRecyclableLED: p.NonRecyclableLED,
		} {
			pin, err := lookup(n)
			if err != nil {
				return nil, err
			}
			leds[led] = pin
		}
	}

	return NewGPIOBoard(sensor, p.SensorActiveLow, leds, logger)
}

// NewGPIOBoard configures already resolved pins. The sensor input is pulled
// toward its idle level and every LED starts low.
func NewGPIOBoard(sensor gpio.PinIO, activeLow bool, leds map[LED]gpio.PinIO, logger *zap.Logger) (*GPIOBoard, error) {
	pull := gpio.PullDown
	if activeLow {
		pull = gpio.PullUp
	}
	if err := sensor.In(pull, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("%w: configure %s: %v", ErrHardware, sensor, err)
	}
	for led, pin := range leds {
		if err := pin.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("%w: configure %s LED on %s: %v", ErrHardware, led, pin, err)
		}
	}
	return &GPIOBoard{sensor: sensor, activeLow: activeLow, leds: leds, logger: logger.Named("gpio")}, nil
}

// ObjectNear reads the proximity input.
func (b *GPIOBoard) ObjectNear() (bool, error) {
	level := b.sensor.Read()
	if b.activeLow {
		return level == gpio.Low, nil
	}
	return level == gpio.High, nil
}

// SetLED drives one indicator.
func (b *GPIOBoard) SetLED(led LED, on bool) error {
	pin, ok := b.leds[led]
	if !ok {
		return fmt.Errorf("%w: no pin for %s LED", ErrHardware, led)
	}
	level := gpio.Low
	if on {
		level = gpio.High
	}
	if err := pin.Out(level); err != nil {
		return fmt.Errorf("%w: drive %s LED: %v", ErrHardware, led, err)
	}
	return nil
}

// Close turns the LEDs off and releases every pin.
func (b *GPIOBoard) Close() error {
	b.logger.Info("cleaning up GPIO")
	var err error
	for led, pin := range b.leds {
		if oerr := pin.Out(gpio.Low); oerr != nil && err == nil {
			err = fmt.Errorf("%w: switch off %s LED: %v", ErrHardware, led, oerr)
		}
		if herr := pin.Halt(); herr != nil && err == nil {
			err = fmt.Errorf("%w: halt %s: %v", ErrHardware, pin, herr)
		}
	}
	if herr := b.sensor.Halt(); herr != nil && err == nil {
		err = fmt.Errorf("%w: halt %s: %v", ErrHardware, b.sensor, herr)
	}
	return err
}
