// Package config loads the server's secondary, optional settings: the
// document root, CGI directory, admin port, request log cap, and MIME
// overrides. The three mandatory positional CLI arguments (port, threads,
// queue_size) are never sourced here — cmd/server parses and validates
// those directly with strconv.Atoi and passes them down explicitly.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/zep-us/dispatchd/pkg/logger"
)

// Secondary holds the settings sourced from config.toml. Every field has a
// default, so the file may be absent entirely.
type Secondary struct {
	DocumentRoot string            `mapstructure:"document_root"`
	CGIDir       string            `mapstructure:"cgi_dir"`
	CGIExtension string            `mapstructure:"cgi_extension"`
	AdminPort    int               `mapstructure:"admin_port"`
	LogCap       int               `mapstructure:"log_cap"`
	CGITimeoutMS int               `mapstructure:"cgi_timeout_ms"`
	MimeOverrides map[string]string `mapstructure:"mime_overrides"`
}

// CGITimeout returns CGITimeoutMS as a time.Duration.
func (s Secondary) CGITimeout() time.Duration {
	return time.Duration(s.CGITimeoutMS) * time.Millisecond
}

// configPathEnv names the environment variable that overrides the config
// file path; unset means "./config.toml".
const configPathEnv = "DISPATCHD_CONFIG"

// reloadable fields are the ones a live config-file edit is allowed to
// change without a restart: document_root, cgi_dir, and admin_port are
// fixed at startup because the listener, CGI resolver, and admin server
// are already bound to them by the time a reload could fire.
type reloadable struct {
	LogCap       int
	CGITimeoutMS int
	MimeOverrides map[string]string
}

// Loader owns the viper instance and the live subset of Secondary that may
// change at runtime. Callers read the current values through Current().
type Loader struct {
	v  *viper.Viper
	mu sync.RWMutex
	cur Secondary
}

// Load reads config.toml (or DISPATCHD_CONFIG) if present, applying
// defaults for every field, and starts a watch for the reloadable subset.
// A missing file is not an error; a malformed one is.
func Load() (*Loader, error) {
	v := viper.New()
	v.SetConfigType("toml")

	if path := os.Getenv(configPathEnv); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	v.SetDefault("document_root", "./www")
	v.SetDefault("cgi_dir", "./cgi-bin")
	v.SetDefault("cgi_extension", ".cgi")
	v.SetDefault("admin_port", 9100)
	v.SetDefault("log_cap", 0)
	v.SetDefault("cgi_timeout_ms", 5000)
	v.SetDefault("mime_overrides", map[string]string{})

	var sec Secondary
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: malformed config file: %w", err)
		}
		logger.Info("no config.toml found, using defaults")
	} else {
		logger.Info("loaded secondary configuration from %s", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(&sec); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	l := &Loader{v: v, cur: sec}

	v.OnConfigChange(func(e fsnotify.Event) {
		l.mu.Lock()
		defer l.mu.Unlock()

		var updated Secondary
		if err := v.Unmarshal(&updated); err != nil {
			logger.Warn("config: reload failed, keeping previous values: %v", err)
			return
		}
		l.cur.LogCap = updated.LogCap
		l.cur.CGITimeoutMS = updated.CGITimeoutMS
		l.cur.MimeOverrides = updated.MimeOverrides
		logger.Info("config: reloaded log_cap=%d cgi_timeout_ms=%d mime_overrides=%d entries",
			l.cur.LogCap, l.cur.CGITimeoutMS, len(l.cur.MimeOverrides))
	})
	v.WatchConfig()

	return l, nil
}

// Current returns a snapshot of the secondary configuration.
func (l *Loader) Current() Secondary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cur
}

// FromSecondary builds a Loader around an already-populated Secondary,
// without touching the filesystem or starting a watch. Used by tests and
// by callers that source configuration some other way than config.toml.
func FromSecondary(sec Secondary) *Loader {
	return &Loader{v: viper.New(), cur: sec}
}
