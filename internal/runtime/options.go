package runtime

import (
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/viper"
)

// Options controls how a Runtime is assembled. Values come from an optional
// config file merged with MODLIB_* environment variables; every field has a
// usable default so the zero-config path works.
type Options struct {
	// StorePath is the file backing persisted entry values.
	StorePath string `mapstructure:"store_path"`
	// StoreFormat selects the store codec, "json" or "toml".
	StoreFormat string `mapstructure:"store_format"`
	// WatchStore reloads entry values when the store file changes on disk.
	WatchStore bool `mapstructure:"watch_store"`
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
	// Strict makes fatal-class misuse panic instead of logging and
	// continuing.
	Strict bool `mapstructure:"strict"`
}

// DefaultOptions returns the options used when no config file is given.
func DefaultOptions() Options {
	return Options{
		StorePath:   "modlib.json",
		StoreFormat: "json",
		LogLevel:    "info",
	}
}

// LoadOptions reads options from the given config file path, layered over
// defaults and MODLIB_* environment variables. An empty path skips the file
// and uses defaults plus environment only.
func LoadOptions(path string) (Options, error) {
	v := viper.New()
	def := DefaultOptions()
	v.SetDefault("store_path", def.StorePath)
	v.SetDefault("store_format", def.StoreFormat)
	v.SetDefault("watch_store", def.WatchStore)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("strict", def.Strict)

	v.SetEnvPrefix("MODLIB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Options{}, oops.With("path", path).Wrapf(err, "read options")
		}
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return Options{}, oops.Wrapf(err, "decode options")
	}
	return opts, nil
}
