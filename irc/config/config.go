package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "IRCD_"

// Config represents the server configuration
type Config struct {
	// Server settings
	Server struct {
		Name        string `yaml:"name" toml:"name" json:"name" env:"SERVER_NAME" validate:"required,fqdn"`
		SID         string `yaml:"sid" toml:"sid" json:"sid" env:"SERVER_SID" validate:"required,len=3,alphanum"`
		Description string `yaml:"description" toml:"description" json:"description" env:"SERVER_DESC"`
		Network     string `yaml:"network" toml:"network" json:"network" env:"NETWORK" validate:"required"`
		Host        string `yaml:"host" toml:"host" json:"host" env:"HOST"`
		Port        int    `yaml:"port" toml:"port" json:"port" env:"PORT" validate:"gte=0,lte=65535"`
		Password    string `yaml:"password" toml:"password" json:"password" env:"PASSWORD"`
	} `yaml:"server" toml:"server" json:"server"`

	// Server-to-server links
	Link struct {
		Host string `yaml:"host" toml:"host" json:"host" env:"LINK_HOST"`
		Port int    `yaml:"port" toml:"port" json:"port" env:"LINK_PORT" validate:"gte=0,lte=65535"`
	} `yaml:"link" toml:"link" json:"link"`

	Links []Link `yaml:"links" toml:"links" json:"links" validate:"dive"`

	// Servers trusted as relays (services, bridges)
	ULines []string `yaml:"ulines" toml:"ulines" json:"ulines" env:"ULINES" envSeparator:","`

	// Operator definitions
	Operators []Operator `yaml:"operators" toml:"operators" json:"operators" validate:"dive"`

	Modules Modules `yaml:"modules" toml:"modules" json:"modules"`

	// Where extension state is kept across module reloads
	Persistence struct {
		Driver string `yaml:"driver" toml:"driver" json:"driver" env:"PERSIST_DRIVER" validate:"omitempty,oneof=sqlite sqlite3 postgres postgresql mysql"`
		DSN    string `yaml:"dsn" toml:"dsn" json:"dsn" env:"PERSIST_DSN"`
	} `yaml:"persistence" toml:"persistence" json:"persistence"`

	// Admin HTTP API
	Admin struct {
		Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled" env:"ADMIN_ENABLED"`
		Host    string `yaml:"host" toml:"host" json:"host" env:"ADMIN_HOST"`
		Port    int    `yaml:"port" toml:"port" json:"port" env:"ADMIN_PORT" validate:"gte=0,lte=65535"`
		Token   string `yaml:"token" toml:"token" json:"token" env:"ADMIN_TOKEN"`
	} `yaml:"admin" toml:"admin" json:"admin"`

	// Prometheus metrics endpoint
	Metrics struct {
		Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled" env:"METRICS_ENABLED"`
		Host    string `yaml:"host" toml:"host" json:"host" env:"METRICS_HOST"`
		Port    int    `yaml:"port" toml:"port" json:"port" env:"METRICS_PORT" validate:"gte=0,lte=65535"`
		Path    string `yaml:"path" toml:"path" json:"path" env:"METRICS_PATH" validate:"omitempty,startswith=/"`
	} `yaml:"metrics" toml:"metrics" json:"metrics"`

	Debug bool `yaml:"debug" toml:"debug" json:"debug" env:"DEBUG"`

	// Configuration source for rehashing
	Source string `yaml:"-" toml:"-" json:"-"`
}

// Link describes a peer server we accept or make a link with
type Link struct {
	Name        string `yaml:"name" toml:"name" json:"name" validate:"required,fqdn"`
	Address     string `yaml:"address" toml:"address" json:"address" validate:"omitempty,hostname_port"`
	Password    string `yaml:"password" toml:"password" json:"password" validate:"required"`
	AutoConnect bool   `yaml:"autoconnect" toml:"autoconnect" json:"autoconnect"`
}

// Operator is an operator block. Password holds a bcrypt hash.
type Operator struct {
	Username   string   `yaml:"username" toml:"username" json:"username" validate:"required"`
	Password   string   `yaml:"password" toml:"password" json:"password" validate:"required"`
	Mask       string   `yaml:"mask" toml:"mask" json:"mask"`
	Privileges []string `yaml:"privileges" toml:"privileges" json:"privileges"`
}

// Modules holds the per-module switches and options
type Modules struct {
	Account struct {
		Enabled bool `yaml:"enabled" toml:"enabled" json:"enabled" env:"MODULE_ACCOUNT"`
	} `yaml:"account" toml:"account" json:"account"`

	RestrictMsg struct {
		Enabled bool `yaml:"enabled" toml:"enabled" json:"enabled" env:"MODULE_RESTRICTMSG"`
	} `yaml:"restrictmsg" toml:"restrictmsg" json:"restrictmsg"`

	Auditorium struct {
		Enabled    bool `yaml:"enabled" toml:"enabled" json:"enabled" env:"MODULE_AUDITORIUM"`
		OpVisible  bool `yaml:"opvisible" toml:"opvisible" json:"opvisible" env:"AUDITORIUM_OPVISIBLE"`
		OpCanSee   bool `yaml:"opcansee" toml:"opcansee" json:"opcansee" env:"AUDITORIUM_OPCANSEE"`
		OperCanSee bool `yaml:"opercansee" toml:"opercansee" json:"opercansee" env:"AUDITORIUM_OPERCANSEE"`
	} `yaml:"auditorium" toml:"auditorium" json:"auditorium"`

	Gender struct {
		Enabled bool `yaml:"enabled" toml:"enabled" json:"enabled" env:"MODULE_GENDER"`
		OneLine bool `yaml:"oneline" toml:"oneline" json:"oneline" env:"GENDER_ONELINE"`
	} `yaml:"gender" toml:"gender" json:"gender"`

	AntiBear struct {
		Enabled bool `yaml:"enabled" toml:"enabled" json:"enabled" env:"MODULE_ANTIBEAR"`
	} `yaml:"antibear" toml:"antibear" json:"antibear"`
}

var validate = validator.New()

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Name = "irc.example.net"
	cfg.Server.SID = "001"
	cfg.Server.Description = "IRC server"
	cfg.Server.Network = "ExampleNet"
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 6667
	cfg.Link.Host = "0.0.0.0"
	cfg.Persistence.Driver = "sqlite"
	cfg.Persistence.DSN = "file::memory:"
	cfg.Admin.Host = "127.0.0.1"
	cfg.Admin.Port = 8080
	cfg.Metrics.Host = "127.0.0.1"
	cfg.Metrics.Port = 7070
	cfg.Metrics.Path = "/metrics"
	cfg.Modules.Account.Enabled = true
	cfg.Modules.RestrictMsg.Enabled = true
	cfg.Modules.Auditorium.OperCanSee = true
	return cfg
}

// Load loads configuration from a file or URL, then .env files and the
// environment. An empty source yields the defaults plus the environment.
func Load(source string) (*Config, error) {
	cfg := Default()
	cfg.Source = source

	if err := cfg.load(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Reload reloads the configuration from the original source or a new source.
// The current configuration is left untouched when the new one is invalid.
func (c *Config) Reload(newSource string) error {
	source := c.Source
	if newSource != "" {
		source = newSource
	}

	newCfg := Default()
	newCfg.Source = source
	if err := newCfg.load(); err != nil {
		return err
	}

	*c = *newCfg
	return nil
}

func (c *Config) load() error {
	if c.Source != "" {
		if err := c.loadFromSource(c.Source); err != nil {
			return err
		}
	}

	// A missing .env file is normal in production
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := c.Validate(); err != nil {
		return err
	}
	return nil
}

// Validate checks the configuration for missing or inconsistent values
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	seen := make(map[string]bool)
	for _, l := range c.Links {
		if strings.EqualFold(l.Name, c.Server.Name) {
			return fmt.Errorf("invalid configuration: link %s has our own server name", l.Name)
		}
		if seen[strings.ToLower(l.Name)] {
			return fmt.Errorf("invalid configuration: duplicate link %s", l.Name)
		}
		seen[strings.ToLower(l.Name)] = true
	}
	return nil
}

// loadFromSource loads configuration from a file or URL
func (c *Config) loadFromSource(source string) error {
	var data []byte
	var err error

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, err := http.Get(source)
		if err != nil {
			return fmt.Errorf("failed to load config from URL: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("failed to load config from URL, status: %s", resp.Status)
		}

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read config from URL: %w", err)
		}
	} else {
		data, err = os.ReadFile(source)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Determine the format based on file extension
	switch {
	case strings.HasSuffix(source, ".toml"):
		err = toml.Unmarshal(data, c)
	case strings.HasSuffix(source, ".json"):
		err = json.Unmarshal(data, c)
	default:
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	return nil
}

// IsULine reports whether the named server is trusted as a relay
func (c *Config) IsULine(server string) bool {
	for _, u := range c.ULines {
		if strings.EqualFold(u, server) {
			return true
		}
	}
	return false
}

// FindLink returns the link block for the named server
func (c *Config) FindLink(name string) (Link, bool) {
	for _, l := range c.Links {
		if strings.EqualFold(l.Name, name) {
			return l, true
		}
	}
	return Link{}, false
}

// GetListenAddress returns the formatted listen address for client connections
func (c *Config) GetListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetLinkListenAddress returns the listen address for server links, or ""
// when links are not accepted
func (c *Config) GetLinkListenAddress() string {
	if c.Link.Port == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Link.Host, c.Link.Port)
}

// GetAdminListenAddress returns the formatted listen address for the admin API
func (c *Config) GetAdminListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Admin.Host, c.Admin.Port)
}

// GetMetricsListenAddress returns the formatted listen address for metrics
func (c *Config) GetMetricsListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Metrics.Host, c.Metrics.Port)
}
