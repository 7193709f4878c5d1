package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable, e.g. NEURABLINK_CAMERA_ID.
const EnvPrefix = "NEURABLINK_"

// Sources selects where Load reads settings from.
type Sources struct {
	// File is a JSON object of settings. A missing file is not an error.
	File string
	// EnvFile is a dotenv file loaded into the environment without overriding
	// variables already set. A missing file is not an error.
	EnvFile string
	// Flags, when set, contributes the flags that were set on the command line.
	Flags *pflag.FlagSet
}

// Load builds a validated Config from the defaults and the given sources.
func Load(src Sources) (*Config, error) {
	cfg := Default()

	if src.File != "" {
		values, err := readFile(src.File)
		if err != nil {
			return nil, err
		}
		for k, v := range values {
			if err := cfg.Set(k, v); err != nil {
				return nil, fmt.Errorf("%s: %w", src.File, err)
			}
		}
	}

	if src.EnvFile != "" {
		if err := godotenv.Load(src.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", src.EnvFile, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if src.Flags != nil {
		if err := applyFlags(&cfg, src.Flags); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ReadFile returns the settings stored in a JSON config file.
func ReadFile(path string) (map[string]any, error) {
	return readFile(path)
}

func readFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	values := make(map[string]any)
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return values, nil
}

// WriteFile stores values as an indented JSON object.
func WriteFile(path string, values map[string]any) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// EnvName returns the environment variable for key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(key)
}

func applyEnv(cfg *Config) error {
	for _, key := range Keys() {
		v, ok := os.LookupEnv(EnvName(key))
		if !ok {
			continue
		}
		if err := cfg.Set(key, v); err != nil {
			return fmt.Errorf("%s: %w", EnvName(key), err)
		}
	}
	return nil
}

// FlagName returns the command line flag for key.
func FlagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// RegisterFlags defines one flag per setting on fs, showing defaults as the current values.
func RegisterFlags(fs *pflag.FlagSet) {
	def := Default()
	for _, key := range Keys() {
		v, _ := def.Get(key)
		fs.String(FlagName(key), fmt.Sprint(v), settings[key].usage)
	}
}

func applyFlags(cfg *Config, fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if _, ok := settings[key]; !ok {
			return
		}
		if setErr := cfg.Set(key, f.Value.String()); setErr != nil {
			err = fmt.Errorf("--%s: %w", f.Name, setErr)
		}
	})
	return err
}
