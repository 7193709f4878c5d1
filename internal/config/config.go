// Package config loads neurablink settings from defaults, a JSON file, the
// environment and command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
)

var (
	// ErrUnknownKey is returned when a setting name is not recognized.
	ErrUnknownKey = errors.New("unknown setting")
	// ErrInvalid wraps validation failures.
	ErrInvalid = errors.New("invalid configuration")
)

// Config holds every setting. Keys used by files, the environment and the
// HTTP API are the json tags.
type Config struct {
	CameraID int    `json:"camera_id" validate:"gte=0"`
	Detector string `json:"detector" validate:"oneof=mediapipe mock"`

	Extractor     string `json:"extractor" validate:"oneof=intensity symmetry surface pixel vertical uniformity"`
	Calibrator    string `json:"calibrator" validate:"oneof=onetime periodic continuous"`
	BufferSize    int    `json:"buffer_size" validate:"min=2,max=100000"`
	EveryNthFrame int    `json:"every_nth_frame" validate:"gtefield=BufferSize"`
	WindowSize    int    `json:"window_size" validate:"min=2,max=30"`
	PatchSize     int    `json:"patch_size" validate:"min=1,max=64"`
	Sensitivity   int    `json:"sensitivity" validate:"min=1,max=5"`

	TickInterval       time.Duration `json:"tick_interval" validate:"min=1ms,max=1s"`
	BlinkTimer         time.Duration `json:"blink_timer" validate:"min=1s,max=15s"`
	HighlightSeconds   float64       `json:"highlight_seconds" validate:"gt=0,lte=5"`
	HighlightIntensity int           `json:"highlight_intensity" validate:"min=0,max=255"`

	StarePlugin string `json:"stare_plugin"`
	StareAction string `json:"stare_action" validate:"required_with=StarePlugin"`

	ListenAddr string `json:"listen_addr" validate:"required,hostname_port"`
	DataDir    string `json:"data_dir" validate:"required"`
	PluginDir  string `json:"plugin_dir"`
	Tray       bool   `json:"tray"`

	LogLevel string `json:"log_level" validate:"oneof=trace debug info warn error"`
	LogFile  string `json:"log_file"`
}

// Default returns the built-in configuration.
func Default() Config {
	dataDir := ".neurablink"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".neurablink")
	}

	return Config{
		CameraID:           0,
		Detector:           "mediapipe",
		Extractor:          "vertical",
		Calibrator:         "continuous",
		BufferSize:         500,
		EveryNthFrame:      1500,
		WindowSize:         2,
		PatchSize:          8,
		Sensitivity:        4,
		TickInterval:       16 * time.Millisecond,
		BlinkTimer:         5 * time.Second,
		HighlightSeconds:   0.2,
		HighlightIntensity: 100,
		ListenAddr:         "127.0.0.1:8081",
		DataDir:            dataDir,
		PluginDir:          filepath.Join(dataDir, "plugins"),
		Tray:               true,
		LogLevel:           "info",
	}
}

var validate = validator.New()

// Validate checks every field.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// setting binds a key to a Config field.
type setting struct {
	get func(c *Config) any
	set func(c *Config, v any) error
	// mutable settings may change while detection runs
	mutable bool
	usage   string
}

func intSetting(usage string, f func(c *Config) *int) setting {
	return setting{
		usage: usage,
		get:   func(c *Config) any { return *f(c) },
		set: func(c *Config, v any) error {
			n, err := cast.ToIntE(v)
			if err != nil {
				return err
			}
			*f(c) = n
			return nil
		},
	}
}

func stringSetting(usage string, f func(c *Config) *string) setting {
	return setting{
		usage: usage,
		get:   func(c *Config) any { return *f(c) },
		set: func(c *Config, v any) error {
			s, err := cast.ToStringE(v)
			if err != nil {
				return err
			}
			*f(c) = strings.TrimSpace(s)
			return nil
		},
	}
}

// durationSetting accepts Go duration strings; bare numbers are seconds.
func durationSetting(usage string, f func(c *Config) *time.Duration) setting {
	return setting{
		usage: usage,
		get:   func(c *Config) any { return f(c).String() },
		set: func(c *Config, v any) error {
			d, err := toDuration(v)
			if err != nil {
				return err
			}
			*f(c) = d
			return nil
		},
	}
}

func toDuration(v any) (time.Duration, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if secs, err := cast.ToFloat64E(s); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
		return cast.ToDurationE(s)
	}
	if d, ok := v.(time.Duration); ok {
		return d, nil
	}
	secs, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs * float64(time.Second)), nil
}

var settings = map[string]setting{
	"camera_id": intSetting("camera device index", func(c *Config) *int { return &c.CameraID }),
	"detector":  stringSetting("landmark provider (mediapipe, mock)", func(c *Config) *string { return &c.Detector }),

	"extractor":       stringSetting("change signal extractor", func(c *Config) *string { return &c.Extractor }),
	"calibrator":      stringSetting("calibration policy (onetime, periodic, continuous)", func(c *Config) *string { return &c.Calibrator }),
	"buffer_size":     intSetting("calibration buffer size in observations", func(c *Config) *int { return &c.BufferSize }),
	"every_nth_frame": intSetting("periodic calibrator reset period in observations", func(c *Config) *int { return &c.EveryNthFrame }),
	"window_size":     intSetting("frames per detection window", func(c *Config) *int { return &c.WindowSize }),
	"patch_size":      intSetting("pixel extractor patch size", func(c *Config) *int { return &c.PatchSize }),
	"sensitivity":     mutableSetting(intSetting("sensitivity level 1-5", func(c *Config) *int { return &c.Sensitivity })),

	"tick_interval":       durationSetting("detection tick interval", func(c *Config) *time.Duration { return &c.TickInterval }),
	"blink_timer":         mutableSetting(durationSetting("time without blinking before the screen dims", func(c *Config) *time.Duration { return &c.BlinkTimer })),
	"highlight_intensity": mutableSetting(intSetting("eye highlight intensity", func(c *Config) *int { return &c.HighlightIntensity })),
	"highlight_seconds": mutableSetting(setting{
		usage: "how long the eye highlight stays red after a blink, in seconds",
		get:   func(c *Config) any { return c.HighlightSeconds },
		set: func(c *Config, v any) error {
			f, err := cast.ToFloat64E(v)
			if err != nil {
				return err
			}
			c.HighlightSeconds = f
			return nil
		},
	}),

	"stare_plugin": mutableSetting(stringSetting("plugin run when the screen is fully dimmed", func(c *Config) *string { return &c.StarePlugin })),
	"stare_action": mutableSetting(stringSetting("plugin action run when the screen is fully dimmed", func(c *Config) *string { return &c.StareAction })),

	"listen_addr": stringSetting("HTTP listen address", func(c *Config) *string { return &c.ListenAddr }),
	"data_dir":    stringSetting("data directory", func(c *Config) *string { return &c.DataDir }),
	"plugin_dir":  stringSetting("plugin directory", func(c *Config) *string { return &c.PluginDir }),
	"tray": {
		usage: "show the system tray icon",
		get:   func(c *Config) any { return c.Tray },
		set: func(c *Config, v any) error {
			b, err := cast.ToBoolE(v)
			if err != nil {
				return err
			}
			c.Tray = b
			return nil
		},
	},

	"log_level": stringSetting("log level", func(c *Config) *string { return &c.LogLevel }),
	"log_file":  stringSetting("rotating log file path", func(c *Config) *string { return &c.LogFile }),
}

func mutableSetting(s setting) setting {
	s.mutable = true
	return s
}

// Keys returns every setting key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Mutable reports whether key may change while detection runs.
func Mutable(key string) bool {
	return settings[key].mutable
}

// Set converts v and assigns it to key. It does not validate.
func (c *Config) Set(key string, v any) error {
	s, ok := settings[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if err := s.set(c, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return nil
}

// Get returns the value of key.
func (c *Config) Get(key string) (any, error) {
	s, ok := settings[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return s.get(c), nil
}

// Values returns every setting, durations formatted as strings.
func (c *Config) Values() map[string]any {
	out := make(map[string]any, len(settings))
	for k, s := range settings {
		out[k] = s.get(c)
	}
	return out
}

// Apply sets every key of values and validates the result. c is left
// unchanged on error.
func (c *Config) Apply(values map[string]any) error {
	next := *c
	for k, v := range values {
		if err := next.Set(k, v); err != nil {
			return err
		}
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}
