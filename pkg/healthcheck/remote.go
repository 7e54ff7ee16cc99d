package healthcheck

import (
	"context"

	"github.com/LINBIT/lcmc/pkg/host"
	"github.com/LINBIT/lcmc/pkg/transport"
)

type checkReachable struct {
	exec transport.Executor
	host string
}

func (c *checkReachable) check(ctx context.Context, _ bool) error {
	_, err := c.exec.Execute(ctx, c.host, "true")
	return err
}

func (c *checkReachable) format(err error) string {
	var r report
	r.failed("Host %s cannot be reached", bold(c.host)).
		detail("%v", err).
		detail("Make sure that %s works without a password prompt.", bold("ssh %s true", c.host))
	return r.String()
}

type checkRemoteInPath struct {
	exec        transport.Executor
	host        string
	binary      string
	packageName string
}

func (c *checkRemoteInPath) check(ctx context.Context, prevError bool) error {
	if prevError {
		// the host failed an earlier check, probably unreachable
		return nil
	}
	_, err := c.exec.Execute(ctx, c.host, "command -v "+transport.Command(c.binary))
	if transport.IsExitCode(err, 1) {
		return errNotFound
	}
	return err
}

func (c *checkRemoteInPath) format(err error) string {
	var r report
	r.failed("%s not found in PATH on %s", bold(c.binary), c.host)
	if err != errNotFound {
		r.detail("%v", err)
	}
	r.install(c.packageName)
	return r.String()
}

type checkRemoteHelper struct {
	exec transport.Executor
	host string
}

func (c *checkRemoteHelper) check(ctx context.Context, prevError bool) error {
	if prevError {
		// the host failed an earlier check, probably unreachable
		return nil
	}
	_, err := c.exec.Execute(ctx, c.host, host.InfoCommand)
	return err
}

func (c *checkRemoteHelper) format(err error) string {
	var r report
	r.failed("The host info helper does not work on %s", c.host).
		detail("%v", err).
		detail("Install it so that %s prints the host facts.", bold(host.InfoCommand))
	return r.String()
}

type checkRemoteService struct {
	exec        transport.Executor
	host        string
	service     string
	packageName string
}

func (c *checkRemoteService) check(ctx context.Context, prevError bool) error {
	if prevError {
		// the host failed an earlier check, probably unreachable
		return nil
	}
	_, err := c.exec.Execute(ctx, c.host, transport.Command("systemctl", "is-active", "--quiet", c.service))
	return err
}

func (c *checkRemoteService) format(err error) string {
	var r report
	r.failed("Service %s is not running on %s", bold(c.service), c.host).
		detail("Make sure that:").
		detail("• the %s package is installed", bold(c.packageName)).
		detail("• the %s systemd unit is started and enabled", bold(c.service))
	return r.String()
}
