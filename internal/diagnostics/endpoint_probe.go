package diagnostics

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// EndpointProbeResult is the outcome of probing one HTTP path.
type EndpointProbeResult struct {
	Path         string `json:"path"`
	StatusCode   *int   `json:"status_code,omitempty"`
	Body         string `json:"body,omitempty"`
	Reachable    bool   `json:"reachable"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Succeeded reports whether the probe got a 2xx response.
func (r EndpointProbeResult) Succeeded() bool {
	return r.Reachable && r.StatusCode != nil && *r.StatusCode >= 200 && *r.StatusCode < 300
}

// EndpointProbeSet is the ordered outcome of probing every configured path.
type EndpointProbeSet struct {
	Results      []EndpointProbeResult `json:"results"`
	AnySucceeded bool                  `json:"any_succeeded"`
}

const (
	defaultEndpointRetries = 10

	// endpointRetryDelay is fixed, unlike the SSH backoff: health checks
	// tolerate slower application warm-up.
	endpointRetryDelay = 15 * time.Second

	endpointCurlTimeout = "10"
)

// retriableStatuses are the only HTTP statuses worth another attempt. Any
// other status, including 404, is terminal.
var retriableStatuses = map[int]bool{
	500: true,
	502: true,
	503: true,
	504: true,
}

// CommandRunner abstracts the local curl invocation for tests.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type curlRunner struct{}

func (curlRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return string(out), err
}

// EndpointHealthProbe performs HTTP GETs against the instance's public
// address for each configured path, with a fixed inter-attempt delay.
type EndpointHealthProbe struct {
	Address    string
	Port       int
	Paths      []string
	MaxRetries int
	Log        *zap.Logger

	runner CommandRunner
	sleep  func(time.Duration)
}

// NewEndpointHealthProbe builds the probe with production defaults.
func NewEndpointHealthProbe(address string, port int, paths []string, log *zap.Logger) *EndpointHealthProbe {
	return &EndpointHealthProbe{
		Address:    address,
		Port:       port,
		Paths:      paths,
		MaxRetries: defaultEndpointRetries,
		Log:        log,
		runner:     curlRunner{},
		sleep:      time.Sleep,
	}
}

func (p *EndpointHealthProbe) Name() string {
	return "endpoint_health"
}

func (p *EndpointHealthProbe) Description() string {
	return "Probing external health-check endpoints"
}

func (p *EndpointHealthProbe) Severity() Severity {
	return SeverityWarning
}

// Run probes every configured path in order. It never raises across its
// boundary; unreachable endpoints produce failed results.
func (p *EndpointHealthProbe) Run(ctx context.Context) *EndpointProbeSet {
	set := &EndpointProbeSet{Results: make([]EndpointProbeResult, 0, len(p.Paths))}

	if p.Address == "" {
		for _, path := range p.Paths {
			set.Results = append(set.Results, EndpointProbeResult{
				Path:         path,
				Reachable:    false,
				ErrorMessage: "instance has no public address",
			})
		}
		return set
	}

	for _, path := range p.Paths {
		result := p.probePath(ctx, path)
		set.Results = append(set.Results, result)
		if result.Succeeded() {
			set.AnySucceeded = true
		}
	}
	return set
}

// probePath retries one path up to MaxRetries attempts, endpointRetryDelay
// apart. Only transport errors and the retriable server statuses are
// retried; everything else is terminal.
func (p *EndpointHealthProbe) probePath(ctx context.Context, path string) EndpointProbeResult {
	retries := p.MaxRetries
	if retries <= 0 {
		retries = defaultEndpointRetries
	}
	url := fmt.Sprintf("http://%s:%d%s", p.Address, p.Port, path)

	var last EndpointProbeResult
	for attempt := 1; attempt <= retries; attempt++ {
		raw, err := p.runner.Run(ctx, "curl",
			"-s", "-m", endpointCurlTimeout, "-w", "%{http_code}", url)
		if err != nil {
			last = EndpointProbeResult{
				Path:         path,
				Reachable:    false,
				ErrorMessage: fmt.Sprintf("request failed: %v", err),
			}
			if p.Log != nil {
				p.Log.Debug("Endpoint probe transport failure",
					zap.String("path", path), zap.Int("attempt", attempt), zap.Error(err))
			}
			p.waitBeforeRetry(attempt, retries)
			continue
		}

		status, body, perr := ParseProbeOutput(raw)
		if perr != nil {
			// Malformed output is a distinct failure from a transport
			// error and is not worth retrying.
			return EndpointProbeResult{
				Path:         path,
				Reachable:    false,
				ErrorMessage: fmt.Sprintf("malformed response: %v", perr),
			}
		}

		result := EndpointProbeResult{
			Path:       path,
			StatusCode: &status,
			Body:       body,
			Reachable:  true,
		}
		if !retriableStatuses[status] {
			return result
		}

		last = result
		last.ErrorMessage = fmt.Sprintf("server returned %d", status)
		if p.Log != nil {
			p.Log.Debug("Endpoint probe got retriable status",
				zap.String("path", path), zap.Int("status", status), zap.Int("attempt", attempt))
		}
		p.waitBeforeRetry(attempt, retries)
	}
	return last
}

func (p *EndpointHealthProbe) waitBeforeRetry(attempt, retries int) {
	if attempt < retries {
		p.sleep(endpointRetryDelay)
	}
}

// ParseProbeOutput splits raw curl output produced with -w '%{http_code}':
// the last three characters are the status code, the remainder the body.
func ParseProbeOutput(raw string) (status int, body string, err error) {
	if len(raw) < 3 {
		return 0, "", cerr.Newf("output too short: %q", raw)
	}
	tail := raw[len(raw)-3:]
	status, aerr := strconv.Atoi(tail)
	if aerr != nil {
		return 0, "", cerr.Newf("non-numeric status %q", tail)
	}
	return status, raw[:len(raw)-3], nil
}

// Result renders the probe set as a ProbeResult.
func (p *EndpointHealthProbe) Result(set *EndpointProbeSet) *ProbeResult {
	result := &ProbeResult{
		ProbeName: p.Name(),
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}, len(set.Results)),
	}

	failing := make([]string, 0)
	for _, r := range set.Results {
		if r.StatusCode != nil {
			result.Details[r.Path] = *r.StatusCode
		} else {
			result.Details[r.Path] = r.ErrorMessage
		}
		if !r.Succeeded() {
			failing = append(failing, r.Path)
		}
	}

	if len(failing) == 0 && len(set.Results) > 0 {
		result.Success = true
		result.Message = fmt.Sprintf("All %d endpoints healthy", len(set.Results))
	} else {
		result.Message = fmt.Sprintf("Unhealthy endpoints: %s", strings.Join(failing, ", "))
	}
	return result
}
