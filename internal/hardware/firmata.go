package hardware

import (
	"fmt"

	"github.com/spencerhhubert/go-firmata"
	"go.uber.org/zap"
)

// FirmataLEDs drives the indicator LEDs on an Arduino running Firmata, for
// builds where the light panel hangs off USB instead of the Pi header.
type FirmataLEDs struct {
	device *firmata.FirmataClient
	pins   map[LED]uint8
	logger *zap.Logger
}

// OpenFirmataLEDs connects to the board on port and sets the LED pins as outputs.
func OpenFirmataLEDs(port string, baud int, p Pinout, logger *zap.Logger) (*FirmataLEDs, error) {
	device, err := firmata.NewClient(port, baud)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to firmata board on %s: %v", ErrHardware, port, err)
	}

	pins := map[LED]uint8{
		StatusLED:        uint8(p.StatusLED),
		RecyclableLED:    uint8(p.RecyclableLED),
		NonRecyclableLED: uint8(p.NonRecyclableLED),
	}
	for _, pin := range pins {
		device.SetPinMode(pin, firmata.Output)
		device.DigitalWrite(pin, false)
	}

	return &FirmataLEDs{device: device, pins: pins, logger: logger.Named("firmata")}, nil
}

// SetLED drives one indicator.
func (f *FirmataLEDs) SetLED(led LED, on bool) error {
	pin, ok := f.pins[led]
	if !ok {
		return fmt.Errorf("%w: no pin for %s LED", ErrHardware, led)
	}
	f.device.DigitalWrite(pin, on)
	return nil
}

// Close switches the LEDs off and closes the serial link. Leaving the link open
// makes the next connection to the microcontroller fail.
func (f *FirmataLEDs) Close() error {
	f.logger.Info("closing firmata board")
	err := AllOff(f)
	f.device.Close()
	return err
}
