// Package cloud wraps the Hetzner Cloud API with the small instance-oriented
// surface deploy-doctor needs: describing a server and flipping its power
// state for the restart fallback.
package cloud

import (
	"context"
	"os"

	cerr "github.com/cockroachdb/errors"
	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"go.uber.org/zap"

	"github.com/opsdoctor/deploy-doctor/internal/logging"
)

// PowerState is the normalized power state of a cloud instance.
type PowerState string

const (
	StateRunning  PowerState = "running"
	StateStopped  PowerState = "stopped"
	StatePending  PowerState = "pending"
	StateNotFound PowerState = "not_found"
	StateError    PowerState = "error"
)

// InstanceState is a point-in-time description of the deployment target.
// It is produced fresh on every diagnostic run and never persisted.
type InstanceState struct {
	Exists        bool       `json:"exists"`
	State         PowerState `json:"state"`
	PublicAddress string     `json:"public_address,omitempty"`
	ImageID       string     `json:"image_id,omitempty"`
}

// RemoteHost is the instance API surface consumed by the probes and the
// remote executor. Tests inject a fake implementation instead of patching
// a global client.
type RemoteHost interface {
	// Describe looks up the instance. A missing instance is a first-class
	// outcome (Exists=false, State=not_found), not an error.
	Describe(ctx context.Context) (*InstanceState, error)

	// PowerOff stops the instance. Used only by the restart fallback.
	PowerOff(ctx context.Context) error

	// PowerOn starts the instance after a power-cycle.
	PowerOn(ctx context.Context) error
}

// Client implements RemoteHost against the Hetzner Cloud API.
type Client struct {
	hcloud       *hcloud.Client
	instanceName string
	log          *zap.Logger
}

// NewClient builds a Hetzner-backed RemoteHost for the named server.
// The API token is read from HCLOUD_TOKEN.
func NewClient(instanceName string, log *zap.Logger) (*Client, error) {
	token := os.Getenv("HCLOUD_TOKEN")
	if token == "" {
		return nil, cerr.New("HCLOUD_TOKEN is not set; the instance API cannot be reached")
	}
	if instanceName == "" {
		return nil, cerr.New("instance name is required")
	}

	return &Client{
		hcloud:       hcloud.NewClient(hcloud.WithToken(token)),
		instanceName: instanceName,
		log:          logging.NopIfNil(log),
	}, nil
}

// Describe fetches the server by name and normalizes its state.
func (c *Client) Describe(ctx context.Context) (*InstanceState, error) {
	server, _, err := c.hcloud.Server.GetByName(ctx, c.instanceName)
	if err != nil {
		c.log.Error("Failed to describe instance",
			zap.String("instance", c.instanceName), zap.Error(err))
		return &InstanceState{Exists: false, State: StateError},
			cerr.Wrapf(err, "describe instance %s", c.instanceName)
	}
	if server == nil {
		c.log.Warn("Instance not found", zap.String("instance", c.instanceName))
		return &InstanceState{Exists: false, State: StateNotFound}, nil
	}

	state := &InstanceState{
		Exists: true,
		State:  normalizeStatus(server.Status),
	}
	if server.PublicNet.IPv4.IP != nil {
		state.PublicAddress = server.PublicNet.IPv4.IP.String()
	}
	if server.Image != nil {
		state.ImageID = server.Image.Name
	}

	c.log.Debug("Described instance",
		zap.String("instance", c.instanceName),
		zap.String("state", string(state.State)),
		zap.String("address", state.PublicAddress))
	return state, nil
}

// PowerOff issues a hard power-off. The restart fallback uses this only as a
// last resort when SSH is persistently unreachable.
func (c *Client) PowerOff(ctx context.Context) error {
	server, err := c.lookup(ctx)
	if err != nil {
		return err
	}
	_, _, err = c.hcloud.Server.Poweroff(ctx, server)
	if err != nil {
		c.log.Error("Failed to power off instance",
			zap.String("instance", c.instanceName), zap.Error(err))
		return cerr.Wrapf(err, "power off instance %s", c.instanceName)
	}
	c.log.Info("Instance power-off requested", zap.String("instance", c.instanceName))
	return nil
}

// PowerOn starts the instance back up.
func (c *Client) PowerOn(ctx context.Context) error {
	server, err := c.lookup(ctx)
	if err != nil {
		return err
	}
	_, _, err = c.hcloud.Server.Poweron(ctx, server)
	if err != nil {
		c.log.Error("Failed to power on instance",
			zap.String("instance", c.instanceName), zap.Error(err))
		return cerr.Wrapf(err, "power on instance %s", c.instanceName)
	}
	c.log.Info("Instance power-on requested", zap.String("instance", c.instanceName))
	return nil
}

func (c *Client) lookup(ctx context.Context) (*hcloud.Server, error) {
	server, _, err := c.hcloud.Server.GetByName(ctx, c.instanceName)
	if err != nil {
		return nil, cerr.Wrapf(err, "look up instance %s", c.instanceName)
	}
	if server == nil {
		return nil, cerr.Newf("instance %s not found", c.instanceName)
	}
	return server, nil
}

// normalizeStatus folds the provider's status vocabulary into the closed
// PowerState enum the classifier reasons about.
func normalizeStatus(status hcloud.ServerStatus) PowerState {
	switch status {
	case hcloud.ServerStatusRunning:
		return StateRunning
	case hcloud.ServerStatusOff:
		return StateStopped
	case hcloud.ServerStatusInitializing, hcloud.ServerStatusStarting,
		hcloud.ServerStatusStopping, hcloud.ServerStatusMigrating,
		hcloud.ServerStatusRebuilding:
		return StatePending
	default:
		return StateError
	}
}
