// Package config loads host settings. Defaults are overlaid by a YAML file
// and then by HVBOARD_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"
)

// FileName is the configuration file looked up by the commands.
const FileName = "hvboard.yml"

// EnvPrefix marks environment overrides. A double underscore separates
// nested keys: HVBOARD_SIM__VARIANT sets sim.variant.
const EnvPrefix = "HVBOARD_"

// Sim configures the board served by hvboard-sim. Backend "sim" runs on
// simulated buses; "linux" drives real hardware through the SBC's I2C,
// spidev and GPIO.
type Sim struct {
	Backend   string `koanf:"backend" yaml:"backend"`
	Variant   string `koanf:"variant" yaml:"variant"`
	Expanders int    `koanf:"expanders" yaml:"expanders"`
	Listen    string `koanf:"listen" yaml:"listen"`
	Store     string `koanf:"store" yaml:"store"`
	Verify    bool   `koanf:"verify" yaml:"verify"`

	I2CBus  string `koanf:"i2c_bus" yaml:"i2c_bus"`
	SPIPort string `koanf:"spi_port" yaml:"spi_port"`
	SPIHz   int64  `koanf:"spi_hz" yaml:"spi_hz"`
}

// Config holds host settings.
type Config struct {
	// Device is a serial device or tcp://host:port.
	Device  string        `koanf:"device" yaml:"device"`
	Baud    int           `koanf:"baud" yaml:"baud"`
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`

	// RateLimit caps commands per second; Burst is the bucket size.
	RateLimit float64 `koanf:"rate_limit" yaml:"rate_limit"`
	Burst     int     `koanf:"burst" yaml:"burst"`

	// Addr is where hvboard-host run serves HTTP.
	Addr string `koanf:"addr" yaml:"addr"`

	Verbose bool `koanf:"verbose" yaml:"verbose"`

	Sim Sim `koanf:"sim" yaml:"sim"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Device:    "/dev/ttyACM0",
		Baud:      115200,
		Timeout:   2 * time.Second,
		RateLimit: 500,
		Burst:     16,
		Addr:      ":8000",
		Sim: Sim{
			Backend:   "sim",
			SPIHz:     1000000,
			Variant:   "hv513-expander",
			Expanders: 2,
			Listen:    "127.0.0.1:7507",
		},
	}
}

// Load builds a Config from the defaults, the YAML file at path and the
// environment. A missing file is not an error.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.Replace(key, "__", ".", -1)
	}), nil)
	if err != nil {
		return Config{}, err
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Write encodes c as YAML.
func Write(w io.Writer, c Config) error {
	return yml.NewEncoder(w).Encode(c)
}
