// Package config loads the TOML configuration file and generates a
// commented default when none exists.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/semihalev/zlog/v2"
)

const configver = "1.0.0"

// Config type
type Config struct {
	Version  string
	LogLevel string `toml:"loglevel"`
	API      string
	Console  bool

	Binding     Binding
	ExternalDNS []ExternalDNS `toml:"external_dns"`
	Cache       Cache

	Blacklist     []string
	Whitelist     []string
	UseFiltering  bool `toml:"use_filtering"`
	UseHeuristics bool `toml:"use_heuristics"`
	WatchRules    bool `toml:"watchrules"`
	IPv6          bool `toml:"ipv6"`

	Nullroute   string
	Nullroutev6 string

	Monitoring []string
	DumpFile   string `toml:"dumpfile"`

	AccessList      []string
	ClientRateLimit int `toml:"clientratelimit"`

	sVersion string
}

// Binding is the UDP listen endpoint.
type Binding struct {
	Address string
	Port    int
}

// ExternalDNS is one upstream resolver. An empty target list marks the
// default upstream; exactly one entry must be the default.
type ExternalDNS struct {
	Name    string
	Address string
	Targets []string
}

// Cache holds the answer cache bounds.
type Cache struct {
	Limit   int
	TTL     int
	Timeout Duration
}

// ServerVersion return current server version
func (c *Config) ServerVersion() string {
	return c.sVersion
}

// Duration type
type Duration struct {
	time.Duration
}

// UnmarshalText for duration type
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

var defaultConfig = `
# Config version, config and build versions can be different.
version = "%s"

# Log verbosity level [error,warn,info,debug]
loglevel = "info"

# Address to bind to for the status/admin http server, left blank for disabled
api = "127.0.0.1:8053"

# Enable the interactive admin console on stdin
console = false

# Rule files, one domain suffix per line, '#' starts a comment
blacklist = []
whitelist = []

# Initial filtering state
use_filtering = true

# Initial random-domain heuristic state
use_heuristics = false

# Reload rules automatically when the files change
watchrules = false

# Answer AAAA queries (otherwise they are refused)
ipv6 = false

# Sentinel addresses returned for blocked names
nullroute = "127.0.0.1"
nullroutev6 = "::1"

# Which query outcomes produce a monitor line [denied,cache,recursive,failure,nxdomain]
monitoring = ["denied", "recursive", "failure"]

# File path for the cache dump command
dumpfile = "dnsgate.dump"

# Which clients are allowed to make queries
accesslist = [
"0.0.0.0/0",
"::0/0"
]

# Client ip address based ratelimit per minute, 0 for disabled
clientratelimit = 0

# UDP endpoint the forwarder listens on
[binding]
address = "127.0.0.1"
port = 5300

# Upstream resolvers. Exactly one entry must have an empty target list;
# it becomes the default. Others are chosen when the query name matches
# one of their target suffixes. An address without a port implies :53.
[[external_dns]]
name = "google"
address = "8.8.8.8"
targets = []

[cache]
# Maximum number of live entries
limit = 8192
# Default TTL in seconds, caps upstream record TTLs
ttl = 600
# Upstream exchange timeout
timeout = "2s"
`

// Load loads the given config file
func Load(cfgfile, version string) (*Config, error) {
	config := new(Config)

	if _, err := os.Stat(cfgfile); os.IsNotExist(err) {
		if err := generateConfig(cfgfile); err != nil {
			return nil, err
		}
	}

	zlog.Info("Loading config file", "path", cfgfile)

	if _, err := toml.DecodeFile(cfgfile, config); err != nil {
		return nil, fmt.Errorf("could not load config: %s", err)
	}

	if config.Version != configver {
		zlog.Warn("Config file is out of version, you can generate new one and check the changes.")
	}

	config.sVersion = version

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.Cache.Limit < 1 {
		config.Cache.Limit = 8192
	}
	if config.Cache.TTL < 1 {
		config.Cache.TTL = 600
	}
	if config.Cache.Timeout.Duration == 0 {
		config.Cache.Timeout.Duration = 2 * time.Second
	}
	if config.Nullroute == "" {
		config.Nullroute = "127.0.0.1"
	}
	if config.Nullroutev6 == "" {
		config.Nullroutev6 = "::1"
	}

	return config, nil
}

func generateConfig(path string) error {
	output, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not generate config: %s", err)
	}

	defer func() {
		err := output.Close()
		if err != nil {
			zlog.Warn("Config generation failed while file closing", "error", err.Error())
		}
	}()

	r := strings.NewReader(fmt.Sprintf(defaultConfig, configver))
	if _, err := io.Copy(output, r); err != nil {
		return fmt.Errorf("could not copy default config: %s", err)
	}

	if abs, err := filepath.Abs(path); err == nil {
		zlog.Info("Default config file generated", "config", abs)
	}

	return nil
}
