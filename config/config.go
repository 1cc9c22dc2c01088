package config

import (
	_ "embed"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/BurntSushi/toml"
)

//go:embed sqfuse.toml
var DefaultConfig []byte

// Duration is a time.Duration written as a string such as "1h" or "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return errors.Wrapf(err, "invalid duration '%s'", text)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

type Config struct {
	Image              string    `toml:"image"`
	Offset             int64     `toml:"offset"`
	Mountpoint         string    `toml:"mountpoint"`
	FSName             string    `toml:"fsname"`
	AllowOther         bool      `toml:"allowother"`
	AllowRoot          bool      `toml:"allowroot"`
	DefaultPermissions bool      `toml:"defaultpermissions"`
	UID                uint32    `toml:"uid"`
	GID                uint32    `toml:"gid"`
	DirectIO           bool      `toml:"directio"`
	AttrTimeout        Duration  `toml:"attrtimeout"`
	EntryTimeout       Duration  `toml:"entrytimeout"`
	Options            []string  `toml:"options"`
	Debug              bool      `toml:"debug"`
	Serialize          bool      `toml:"serialize"`
	CacheBlocks        int       `toml:"cacheblocks"`
	HandleLimit        int       `toml:"handlelimit"`
	Log                LogConfig `toml:"Log"`
}

var logLevels = []string{"DEBUG", "INFO", "WARN", "ERROR"}

// LoadConfig decodes a TOML document over the defaults.
func LoadConfig(data string) (*Config, error) {
	var conf = &Config{
		FSName:             "squashfuse",
		DefaultPermissions: true,
		AttrTimeout:        Duration{time.Hour},
		EntryTimeout:       Duration{time.Hour},
		Options:            []string{},
		Log: LogConfig{
			Level: "ERROR",
		},
	}

	if _, err := toml.Decode(data, conf); err != nil {
		return nil, errors.Wrap(err, "Error on loading config")
	}

	conf.Log.Level = strings.ToUpper(conf.Log.Level)
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate checks values that can also come from command line flags.
func (conf *Config) Validate() error {
	if !validLevel(conf.Log.Level) {
		return errors.Errorf("unknown log level '%s' please use %v", conf.Log.Level, logLevels)
	}
	if conf.Offset < 0 {
		return errors.Errorf("negative image offset %d", conf.Offset)
	}
	if conf.AttrTimeout.Duration < 0 || conf.EntryTimeout.Duration < 0 {
		return errors.New("timeouts cannot be negative")
	}
	return nil
}

func validLevel(level string) bool {
	for _, l := range logLevels {
		if l == level {
			return true
		}
	}
	return false
}
