// Package config loads the deployment description that tells deploy-doctor
// which instance to examine and what the application running on it looks like.
package config

import (
	"os"

	cerr "github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DeploymentConfig describes one deployment target. It is the interface
// surface consumed from the installer scripts; deploy-doctor only reads it.
type DeploymentConfig struct {
	// InstanceName is the cloud provider name of the target server.
	InstanceName string `yaml:"instance_name"`

	// Location is the provider region or datacenter the instance lives in.
	Location string `yaml:"location"`

	// SSHUser is the login used for remote diagnostics. Defaults to root.
	SSHUser string `yaml:"ssh_user"`

	// AppPort is the port the deployed application listens on.
	AppPort int `yaml:"app_port"`

	// HealthPaths are the HTTP paths probed during endpoint health checks.
	HealthPaths []string `yaml:"health_paths"`

	// Dependencies maps dependency names (node, npm, pm2, nginx, ...) to
	// whether the deployment enables them. Used to decide which application
	// diagnostics are relevant.
	Dependencies map[string]bool `yaml:"dependencies"`
}

// Load reads and validates a deployment config from a YAML file.
func Load(path string) (*DeploymentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerr.Wrapf(err, "read deployment config %s", path)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, cerr.Wrapf(err, "parse deployment config %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with the defaults applied before YAML decoding.
func Default() *DeploymentConfig {
	return &DeploymentConfig{
		SSHUser:     "root",
		AppPort:     3000,
		HealthPaths: []string{"/health"},
		Dependencies: map[string]bool{
			"node": true,
			"npm":  true,
			"pm2":  true,
		},
	}
}

// Validate checks the config for values diagnostics cannot work without.
func (c *DeploymentConfig) Validate() error {
	if c.InstanceName == "" {
		return cerr.New("deployment config: instance_name is required")
	}
	if c.AppPort <= 0 || c.AppPort > 65535 {
		return cerr.Newf("deployment config: app_port %d is out of range", c.AppPort)
	}
	if c.SSHUser == "" {
		c.SSHUser = "root"
	}
	if len(c.HealthPaths) == 0 {
		c.HealthPaths = []string{"/health"}
	}
	return nil
}

// LoadEnv loads a .env file when one exists so HCLOUD_TOKEN and friends can
// be kept out of the shell profile. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}
