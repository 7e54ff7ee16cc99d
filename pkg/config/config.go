// Package config holds the lcmc configuration file format.
//
// The file is TOML. Command line flags and LCMC_* environment variables are
// bound through viper and take precedence over the file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	gotoml "github.com/pelletier/go-toml"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/LINBIT/lcmc/pkg/crmcontrol"
)

const DefaultPath = "/etc/lcmc/lcmc.toml"

// Viper keys
const (
	KeyAdvancedMode  = "advanced_mode"
	KeyPollInterval  = "poll.interval"
	KeyVMInterval    = "poll.vm_interval"
	KeySSHCommand    = "transport.ssh_command"
	KeyServerAddr    = "server.addr"
	KeyCorsOrigins   = "server.cors_allowed_origins"
	defaultInterval  = "10s"
	defaultVMPoll    = "30s"
	defaultSSH       = "ssh"
	defaultAddr      = ":8338"
	minimumPollCycle = time.Second
)

type Cluster struct {
	Name  string   `toml:"name"`
	Hosts []string `toml:"hosts"`
}

type Poll struct {
	Interval   string `toml:"interval"`
	VMInterval string `toml:"vm_interval"`
}

type Transport struct {
	SSHCommand string `toml:"ssh_command"`
}

type Server struct {
	Addr               string   `toml:"addr"`
	CorsAllowedOrigins []string `toml:"cors_allowed_origins,omitempty"`
}

// Crm lists the resource agents offered when adding a service, written as
// "class:provider:type" or "class:type".
type Crm struct {
	Agents []crmcontrol.ResourceAgentID `toml:"agents,omitempty"`
}

type Config struct {
	AdvancedMode bool      `toml:"advanced_mode"`
	Clusters     []Cluster `toml:"clusters"`
	Poll         Poll      `toml:"poll"`
	Transport    Transport `toml:"transport"`
	Server       Server    `toml:"server"`
	Crm          Crm       `toml:"crm"`
}

// Default returns a configuration without clusters.
func Default() Config {
	return Config{
		Poll:      Poll{Interval: defaultInterval, VMInterval: defaultVMPoll},
		Transport: Transport{SSHCommand: defaultSSH},
		Server:    Server{Addr: defaultAddr},
	}
}

// Decode reads a configuration. Settings missing from r get their defaults,
// unknown keys are logged and ignored.
func Decode(r io.Reader) (Config, error) {
	var cfg Config
	md, err := toml.DecodeReader(r, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	for _, key := range md.Undecoded() {
		log.WithField("key", key.String()).Warn("Ignoring unknown config key")
	}
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) fillDefaults() {
	def := Default()
	if c.Poll.Interval == "" {
		c.Poll.Interval = def.Poll.Interval
	}
	if c.Poll.VMInterval == "" {
		c.Poll.VMInterval = def.Poll.VMInterval
	}
	if c.Transport.SSHCommand == "" {
		c.Transport.SSHCommand = def.Transport.SSHCommand
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
}

// Load reads the configuration file at path. A missing file yields the
// defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		log.WithField("path", path).Debug("No config file, using defaults")
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Encode writes cfg as TOML.
func (c Config) Encode(w io.Writer) error {
	return gotoml.NewEncoder(w).Order(gotoml.OrderPreserve).Encode(c)
}

// ApplyOverrides copies values that were set on v, from flags or the
// environment, into c.
func (c *Config) ApplyOverrides(v *viper.Viper) {
	if v.IsSet(KeyAdvancedMode) {
		c.AdvancedMode = v.GetBool(KeyAdvancedMode)
	}
	if v.IsSet(KeyPollInterval) {
		c.Poll.Interval = v.GetString(KeyPollInterval)
	}
	if v.IsSet(KeyVMInterval) {
		c.Poll.VMInterval = v.GetString(KeyVMInterval)
	}
	if v.IsSet(KeySSHCommand) {
		c.Transport.SSHCommand = v.GetString(KeySSHCommand)
	}
	if v.IsSet(KeyServerAddr) {
		c.Server.Addr = v.GetString(KeyServerAddr)
	}
	if v.IsSet(KeyCorsOrigins) {
		c.Server.CorsAllowedOrigins = v.GetStringSlice(KeyCorsOrigins)
	}
}

func parseInterval(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < minimumPollCycle {
		return 0, fmt.Errorf("invalid %s: %s is shorter than %s", key, d, minimumPollCycle)
	}
	return d, nil
}

// PollInterval returns the status poll cycle.
func (c Config) PollInterval() (time.Duration, error) {
	return parseInterval(KeyPollInterval, c.Poll.Interval)
}

// VMPollInterval returns the domain definition poll cycle.
func (c Config) VMPollInterval() (time.Duration, error) {
	return parseInterval(KeyVMInterval, c.Poll.VMInterval)
}

// Cluster returns the cluster with the given name.
func (c Config) Cluster(name string) (Cluster, bool) {
	for _, cl := range c.Clusters {
		if cl.Name == name {
			return cl, true
		}
	}
	return Cluster{}, false
}

var knownAgentClasses = map[string]bool{
	crmcontrol.ClassOCF:     true,
	crmcontrol.ClassLSB:     true,
	crmcontrol.ClassSystemd: true,
	crmcontrol.ClassService: true,
	crmcontrol.ClassStonith: true,
}

// Validate checks that cluster names are unique and that every cluster has
// hosts. A host may only be part of one cluster, and agents need a known
// class.
func (c Config) Validate() error {
	names := make(map[string]bool)
	hosts := make(map[string]string)
	for _, cl := range c.Clusters {
		if cl.Name == "" {
			return errors.New("cluster without a name")
		}
		if names[cl.Name] {
			return fmt.Errorf("duplicate cluster %q", cl.Name)
		}
		names[cl.Name] = true
		if len(cl.Hosts) == 0 {
			return fmt.Errorf("cluster %q has no hosts", cl.Name)
		}
		for _, h := range cl.Hosts {
			if other, ok := hosts[h]; ok {
				return fmt.Errorf("host %q is part of clusters %q and %q", h, other, cl.Name)
			}
			hosts[h] = cl.Name
		}
	}
	for _, a := range c.Crm.Agents {
		if !knownAgentClasses[a.Class] {
			return fmt.Errorf("agent %s has unknown class %q", a, a.Class)
		}
		if a.Class == crmcontrol.ClassOCF && a.Provider == "" {
			return fmt.Errorf("ocf agent %s needs a provider", a)
		}
	}
	if _, err := c.PollInterval(); err != nil {
		return err
	}
	if _, err := c.VMPollInterval(); err != nil {
		return err
	}
	return nil
}
