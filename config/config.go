// Package config loads the runtime configuration of the logger.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	SPI      SPI      `yaml:"spi"`
	UART     UART     `yaml:"uart"`
	Capture  Capture  `yaml:"capture"`
	Store    Store    `yaml:"store"`
	Recovery Recovery `yaml:"recovery"`
}

// SPI selects and configures the flash transport.
type SPI struct {
	Bus     int   `yaml:"bus"`
	Device  int   `yaml:"device"`
	SpeedHz int64 `yaml:"speed_hz"`
	Mode    int   `yaml:"mode"`
}

// UART configures the serial command channel.
type UART struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// Capture configures the image source.
type Capture struct {
	Dir string `yaml:"dir"`
}

// Store configures the periodic storage loop: one loop tick per Interval,
// one store attempt every Every ticks.
type Store struct {
	Interval Duration `yaml:"interval"`
	Every    int      `yaml:"every"`
}

// Recovery configures the offline recovery tool.
type Recovery struct {
	Dir       string `yaml:"dir"`
	Extension string `yaml:"extension"`
}

// Default returns the configuration matching the deployed board.
func Default() Config {
	return Config{
		SPI: SPI{
			Bus:     0,
			Device:  1,
			SpeedHz: 10_000_000,
			Mode:    0,
		},
		UART: UART{
			Port: "/dev/ttyAMA0",
			Baud: 9600,
		},
		Capture: Capture{
			Dir: "mock_images",
		},
		Store: Store{
			Interval: Duration(100 * time.Millisecond),
			Every:    10,
		},
		Recovery: Recovery{
			Dir:       "flash_recovered",
			Extension: ".jpg",
		},
	}
}

// Load reads a YAML file over the defaults. A missing path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config %q", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parsing config %q", path)
	}
	return cfg, nil
}

// Duration decodes YAML strings like "100ms" or "1s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return errors.WithStack(err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", s)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}
