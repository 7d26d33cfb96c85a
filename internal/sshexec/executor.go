// Package sshexec runs commands on the deployment target over SSH with
// retry semantics tuned for flaky cloud networking. Transient connection
// failures are retried with a linear-capped backoff; anything else fails
// fast. As a last resort in automated runs the executor power-cycles the
// instance once and resumes retrying.
package sshexec

import (
	"context"
	"fmt"
	"net"
	"time"

	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/opsdoctor/deploy-doctor/internal/cloud"
	"github.com/opsdoctor/deploy-doctor/internal/logging"
)

const (
	// Backoff between transient failures: min(retryBaseDelay +
	// retryDelayStep*attempt, retryMaxDelay), attempt counted from 1.
	// Empirically tuned values, kept exactly for parity with the
	// deployment scripts that depend on them.
	retryBaseDelay = 15 * time.Second
	retryDelayStep = 10 * time.Second
	retryMaxDelay  = 60 * time.Second

	// powerCycleThreshold is how many consecutive transient failures an
	// automated run tolerates before restarting the instance.
	powerCycleThreshold = 3

	connectTimeout     = 10 * time.Second
	sshPort            = 22
	powerCyclePoll     = 10 * time.Second
	powerCycleDeadline = 3 * time.Minute
	sshBootGrace       = 45 * time.Second
)

// ExecutionContext tells the executor whether a human is watching. The
// power-cycle fallback only fires in automated (non-interactive) runs.
type ExecutionContext struct {
	Interactive bool
}

// Session is one SSH connection able to run a single command.
type Session interface {
	CombinedOutput(cmd string) ([]byte, error)
	Close() error
}

// Dialer opens SSH sessions. The default implementation dials TCP; tests
// inject a fake.
type Dialer interface {
	Dial(addr string, cfg *ssh.ClientConfig) (Session, error)
}

// Executor runs remote commands with retry and power-cycle fallback.
type Executor struct {
	host    cloud.RemoteHost
	creds   CredentialSource
	dialer  Dialer
	user    string
	execCtx ExecutionContext
	log     *zap.Logger

	// sleep is swapped out in tests so retry timing is assertable.
	sleep func(time.Duration)
}

// NewExecutor builds an executor for the given host. A nil logger is
// replaced with a no-op logger.
func NewExecutor(host cloud.RemoteHost, user string, execCtx ExecutionContext, log *zap.Logger) *Executor {
	return &Executor{
		host:    host,
		creds:   EphemeralKeySource{},
		dialer:  sshDialer{},
		user:    user,
		execCtx: execCtx,
		log:     logging.NopIfNil(log),
		sleep:   time.Sleep,
	}
}

// Execute runs command on the remote host, retrying transient connection
// failures up to maxRetries attempts. It returns whether the command
// succeeded and the combined output (or error text) of the last attempt.
//
// Every attempt uses fresh one-shot credential material which is removed
// on every exit path. After powerCycleThreshold consecutive transient
// failures in a non-interactive context the instance is power-cycled once
// and retrying resumes.
func (e *Executor) Execute(ctx context.Context, command string, timeout time.Duration, maxRetries int) (bool, string) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	consecutiveTransient := 0
	powerCycled := false
	lastOutput := ""

	for attempt := 1; attempt <= maxRetries; attempt++ {
		output, err := e.runOnce(ctx, command, timeout)
		if err == nil {
			return true, output
		}

		lastOutput = output
		if lastOutput == "" {
			lastOutput = err.Error()
		}

		category := ClassifyError(err.Error() + "\n" + output)
		if category != ErrorTransient {
			e.log.Warn("Remote command failed terminally",
				zap.String("command", command),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return false, lastOutput
		}

		consecutiveTransient++
		e.log.Warn("Transient connection failure",
			zap.String("command", command),
			zap.Int("attempt", attempt),
			zap.Int("consecutive", consecutiveTransient),
			zap.Error(err))

		if consecutiveTransient >= powerCycleThreshold && !powerCycled && !e.execCtx.Interactive {
			if cycleErr := e.powerCycle(ctx); cycleErr != nil {
				e.log.Error("Power-cycle fallback failed", zap.Error(cycleErr))
			} else {
				consecutiveTransient = 0
			}
			powerCycled = true
		}

		if attempt < maxRetries {
			delay := BackoffDelay(attempt)
			e.log.Debug("Backing off before retry",
				zap.Duration("delay", delay), zap.Int("attempt", attempt))
			e.sleep(delay)
		}
	}

	return false, lastOutput
}

// BackoffDelay returns the wait after the given failed attempt (counted
// from 1): min(15+10*attempt, 60) seconds.
func BackoffDelay(attempt int) time.Duration {
	d := retryBaseDelay + retryDelayStep*time.Duration(attempt)
	if d > retryMaxDelay {
		d = retryMaxDelay
	}
	return d
}

// runOnce performs a single attempt: resolve the instance address, issue
// one-shot credentials, open a session, run the command.
func (e *Executor) runOnce(ctx context.Context, command string, timeout time.Duration) (string, error) {
	state, err := e.host.Describe(ctx)
	if err != nil {
		return "", cerr.Wrap(err, "resolve instance address")
	}
	if !state.Exists || state.PublicAddress == "" {
		return "", cerr.New("instance has no public address")
	}

	cred, err := e.creds.Issue()
	if err != nil {
		return "", cerr.Wrap(err, "issue credential")
	}
	defer cred.Cleanup()

	cfg := &ssh.ClientConfig{
		User: e.user,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(cred.Signer)},
		// Automated runs cannot answer host-key prompts; known-hosts
		// churn after instance rebuilds would also break every run.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connectTimeout,
	}

	addr := net.JoinHostPort(state.PublicAddress, fmt.Sprintf("%d", sshPort))
	session, err := e.dialer.Dial(addr, cfg)
	if err != nil {
		return "", cerr.Wrapf(err, "dial %s", addr)
	}
	defer session.Close()

	return e.runWithTimeout(session, command, timeout)
}

// runWithTimeout enforces the per-command timeout by closing the session
// when it elapses; the crypto/ssh session has no context support.
func (e *Executor) runWithTimeout(session Session, command string, timeout time.Duration) (string, error) {
	type result struct {
		output []byte
		err    error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(command)
		done <- result{out, err}
	}()

	if timeout <= 0 {
		r := <-done
		return string(r.output), r.err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return string(r.output), r.err
	case <-timer.C:
		session.Close()
		return "", cerr.Newf("command timed out after %s", timeout)
	}
}

// powerCycle stops the instance, waits for it to reach stopped, starts it,
// waits for running, then gives sshd a grace period to come up.
func (e *Executor) powerCycle(ctx context.Context) error {
	e.log.Info("Power-cycling instance as last-resort recovery")

	if err := e.host.PowerOff(ctx); err != nil {
		return cerr.Wrap(err, "power off")
	}
	if err := e.waitForState(ctx, cloud.StateStopped); err != nil {
		return cerr.Wrap(err, "wait for stopped")
	}
	if err := e.host.PowerOn(ctx); err != nil {
		return cerr.Wrap(err, "power on")
	}
	if err := e.waitForState(ctx, cloud.StateRunning); err != nil {
		return cerr.Wrap(err, "wait for running")
	}

	e.log.Info("Instance restarted, waiting for SSH to initialize",
		zap.Duration("grace", sshBootGrace))
	e.sleep(sshBootGrace)
	return nil
}

func (e *Executor) waitForState(ctx context.Context, want cloud.PowerState) error {
	deadline := time.Now().Add(powerCycleDeadline)
	for {
		state, err := e.host.Describe(ctx)
		if err == nil && state.State == want {
			return nil
		}
		if time.Now().After(deadline) {
			return cerr.Newf("instance did not reach state %q within %s", want, powerCycleDeadline)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.sleep(powerCyclePoll)
	}
}

// sshDialer is the production Dialer backed by crypto/ssh.
type sshDialer struct{}

func (sshDialer) Dial(addr string, cfg *ssh.ClientConfig) (Session, error) {
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, err
	}
	return &sshSession{client: client}, nil
}

// sshSession runs one command over a dedicated client connection.
type sshSession struct {
	client *ssh.Client
}

func (s *sshSession) CombinedOutput(cmd string) ([]byte, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	return sess.CombinedOutput(cmd)
}

func (s *sshSession) Close() error {
	return s.client.Close()
}
