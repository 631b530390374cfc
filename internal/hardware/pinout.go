package hardware

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Pinout maps the bin's signals to BCM GPIO numbers.
type Pinout struct {
	Sensor           int  `yaml:"sensor"`
	StatusLED        int  `yaml:"status_led"`
	RecyclableLED    int  `yaml:"recyclable_led"`
	NonRecyclableLED int  `yaml:"nonrecyclable_led"`
	SensorActiveLow  bool `yaml:"sensor_active_low"`
}

// LoadPinout overlays the YAML file at path onto base. Keys absent from the
// file keep their base value.
func LoadPinout(path string, base Pinout) (Pinout, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read pinout file: %w", err)
	}

	pinout := base
	if err := yaml.Unmarshal(data, &pinout); err != nil {
		return base, fmt.Errorf("failed to parse pinout file %s: %w", path, err)
	}
	if err := pinout.validate(); err != nil {
		return base, err
	}
	return pinout, nil
}

func (p Pinout) validate() error {
	seen := map[int]string{}
	for name, pin := range map[string]int{
		"sensor":            p.Sensor,
		"status_led":        p.StatusLED,
		"recyclable_led":    p.RecyclableLED,
		"nonrecyclable_led": p.NonRecyclableLED,
	} {
		if pin < 0 || pin > 27 {
			return fmt.Errorf("%s: GPIO%d is not a BCM header pin", name, pin)
		}
		if other, dup := seen[pin]; dup {
			return fmt.Errorf("%s and %s share GPIO%d", name, other, pin)
		}
		seen[pin] = name
	}
	return nil
}
