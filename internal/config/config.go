// Package config loads ssm.conf, the [defaults]-section INI file
// described in spec.md §6, and bundles it with the process-wide
// operation flags (--debug, --force, --verbose) into a single record
// passed explicitly into operations rather than read from a mutable
// singleton (spec.md §9, "global mutable state").
package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// Config is the configuration record threaded through CLI commands
// and into domain operations that need disabled-platform substitution
// or listing defaults.
type Config struct {
	DisabledPublishPlatforms []string
	ListForAllPlatforms      bool

	Debug   bool
	Force   bool
	Verbose bool
}

func splitCommaSpace(v string) []string {
	v = strings.ReplaceAll(v, ",", " ")
	return strings.Fields(v)
}

// Load reads the system and user ssm.conf files, the user's file
// overriding the system one, matching ssm/config.py's
// load_configuration.
func Load() (*Config, error) {
	c := &Config{}

	sysConfPath := filepath.Join(filepath.Dir(os.Args[0]), "../etc/ssm/ssm.conf")
	home, err := os.UserHomeDir()
	userConfPath := ""
	if err == nil {
		userConfPath = filepath.Join(home, ".ssm/ssm.conf")
	}

	var paths []string
	for _, p := range []string{sysConfPath, userConfPath} {
		if p == "" {
			continue
		}
		if _, statErr := os.Stat(p); statErr == nil {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return c, nil
	}

	cfg, err := ini.Load(paths[0], interfaceSlice(paths[1:])...)
	if err != nil {
		return nil, err
	}

	section := cfg.Section("defaults")
	if section.HasKey("disabled_publish_platforms") {
		v := splitCommaSpace(section.Key("disabled_publish_platforms").String())
		// the empty entry stands in for "the current, unqualified platform"
		c.DisabledPublishPlatforms = append([]string{""}, v...)
	}
	if section.HasKey("list_for_all_platforms") {
		v := strings.ToLower(section.Key("list_for_all_platforms").String())
		c.ListForAllPlatforms = v == "yes" || v == "true"
	}

	return c, nil
}

func interfaceSlice(paths []string) []interface{} {
	out := make([]interface{}, len(paths))
	for i, p := range paths {
		out[i] = p
	}
	return out
}

// IsDisabledPublishPlatform reports whether platform is configured as
// a disabled-publish sentinel (spec.md §3: substituted by an
// environment-derived platform at publish time).
func (c *Config) IsDisabledPublishPlatform(platform string) bool {
	for _, p := range c.DisabledPublishPlatforms {
		if p == platform {
			return true
		}
	}
	return false
}
