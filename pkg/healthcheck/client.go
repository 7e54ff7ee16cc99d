package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LINBIT/lcmc/client"
	"github.com/LINBIT/lcmc/pkg/rest"
)

var errNotReady = errors.New("server has not seen every cluster yet")

// checkServerConnection asks the server for its status. A reachable server
// that has not yet polled all clusters is reported as well.
type checkServerConnection struct {
	cli *client.Client
}

func (c *checkServerConnection) check(ctx context.Context, _ bool) error {
	ctx, done := context.WithTimeout(ctx, 5*time.Second)
	defer done()
	status, err := c.cli.Status.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	return judgeStatus(status)
}

func judgeStatus(status *rest.Status) error {
	switch {
	case status == nil:
		return errors.New("received nil status from server")
	case status.Status != "ok":
		return fmt.Errorf("received invalid status from server: %q", status.Status)
	case !status.Ready:
		return errNotReady
	}
	return nil
}

func (c *checkServerConnection) format(err error) string {
	var r report
	if errors.Is(err, errNotReady) {
		r.warned("The console server is running but some clusters did not report a status yet").
			detail("Run %s on the server to see which hosts are unreachable.", bold("lcmc check-health --mode hosts"))
		return r.String()
	}
	r.failed("The console server cannot be reached from this node").
		detail("%v", err).
		detail("Make sure the %s command line option points to a running console server.", bold("--connect"))
	return r.String()
}
