package healthcheck

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"

	"github.com/LINBIT/lcmc/pkg/version"
)

// unitError describes a unit that exists but is not in the wanted state.
type unitError struct {
	active  string
	enabled string
}

func (e *unitError) Error() string {
	return fmt.Sprintf("unit is %s and %s", e.active, e.enabled)
}

// unitProblem judges a unit by its load, active and unit file state.
// Units that are active but only enabled at runtime or statically count as
// fine, a cluster node comes back without them otherwise.
func unitProblem(status dbus.UnitStatus, fileState string) error {
	if status.LoadState == "not-found" {
		return errNotFound
	}
	enabled := fileState == "enabled" || fileState == "enabled-runtime" || fileState == "static"
	if status.ActiveState == "active" && enabled {
		return nil
	}
	if fileState == "" {
		fileState = "unknown"
	}
	return &unitError{active: status.ActiveState, enabled: fileState}
}

type checkStartedAndEnabled struct {
	service     string
	packageName string
}

func (c *checkStartedAndEnabled) check(ctx context.Context, _ bool) error {
	ctx, done := context.WithTimeout(ctx, 5*time.Second)
	defer done()
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to systemd: %w", err)
	}
	defer conn.Close()

	statuses, err := conn.ListUnitsByNamesContext(ctx, []string{c.service})
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		return errNotFound
	}
	var fileState string
	prop, err := conn.GetUnitPropertyContext(ctx, c.service, "UnitFileState")
	if err == nil {
		fileState, _ = prop.Value.Value().(string)
	}
	return unitProblem(statuses[0], fileState)
}

func (c *checkStartedAndEnabled) format(err error) string {
	var r report
	var ue *unitError
	switch {
	case errors.Is(err, errNotFound):
		r.failed("Service %s is not installed", bold(c.service)).install(c.packageName)
	case errors.As(err, &ue):
		r.failed("Service %s is %s and %s", bold(c.service), ue.active, ue.enabled).
			detail("Execute %s to start it now and on every boot", bold("systemctl enable --now %s", c.service))
	default:
		r.failed("Could not check service %s", bold(c.service)).detail("%v", err)
	}
	return r.String()
}

type checkFileExists struct {
	filename    string
	packageName string
	isDirectory bool
}

func (c *checkFileExists) check(context.Context, bool) error {
	fi, err := os.Stat(c.filename)
	if err != nil {
		return err
	}
	if fi.IsDir() != c.isDirectory {
		return fmt.Errorf("%s has the wrong type", c.filename)
	}
	return nil
}

func (c *checkFileExists) format(err error) string {
	var r report
	if os.IsNotExist(err) {
		r.failed("%s is missing", bold(c.filename)).install(c.packageName)
		return r.String()
	}
	r.failed("Could not check %s", bold(c.filename)).detail("%v", err)
	return r.String()
}

// parseModules returns the module names of a /proc/modules listing.
func parseModules(r io.Reader) ([]string, error) {
	var modules []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if f := strings.Fields(scanner.Text()); len(f) > 0 {
			modules = append(modules, f[0])
		}
	}
	return modules, scanner.Err()
}

func lsmod() ([]string, error) {
	f, err := os.Open("/proc/modules")
	if err != nil {
		return nil, fmt.Errorf("failed to open /proc/modules: %w", err)
	}
	defer f.Close()

	modules, err := parseModules(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read /proc/modules: %w", err)
	}
	return modules, nil
}

var errKernelModuleNotLoaded = errors.New("kernel module is not loaded")

type checkKernelModuleLoaded struct {
	module      string
	packageName string
}

func (c *checkKernelModuleLoaded) check(context.Context, bool) error {
	modules, err := lsmod()
	if err != nil {
		return err
	}
	if !contains(modules, c.module) {
		return errKernelModuleNotLoaded
	}
	return nil
}

func (c *checkKernelModuleLoaded) format(err error) string {
	var r report
	if errors.Is(err, errKernelModuleNotLoaded) {
		r.failed("The %s kernel module is not loaded", bold(c.module)).
			detail("Load it with %s, it is shipped in %s", bold("modprobe %s", c.module), bold(c.packageName))
		return r.String()
	}
	r.failed("Could not list the loaded kernel modules").detail("%v", err)
	return r.String()
}

var procDrbdVersion = regexp.MustCompile(`^version: (\S+)`)

// parseDrbdVersion returns the kernel module version from /proc/drbd.
func parseDrbdVersion(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if m := procDrbdVersion.FindStringSubmatch(scanner.Text()); m != nil {
			return m[1], nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", errors.New("no version line")
}

// checkDrbdVersion runs after the module check and is skipped when that
// failed.
type checkDrbdVersion struct {
	minimum string
}

func (c *checkDrbdVersion) check(_ context.Context, prevError bool) error {
	if prevError {
		return nil
	}
	f, err := os.Open("/proc/drbd")
	if err != nil {
		return err
	}
	defer f.Close()
	have, err := parseDrbdVersion(f)
	if err != nil {
		return fmt.Errorf("failed to read /proc/drbd: %w", err)
	}
	ok, err := version.AtLeast(have, c.minimum)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("DRBD %s is loaded, at least %s is needed", have, c.minimum)
	}
	return nil
}

func (c *checkDrbdVersion) format(err error) string {
	var r report
	r.failed("The loaded DRBD kernel module is not supported").detail("%v", err)
	return r.String()
}

type checkInPath struct {
	binary      string
	packageName string
}

func (c *checkInPath) check(context.Context, bool) error {
	_, err := exec.LookPath(c.binary)
	return err
}

func (c *checkInPath) format(err error) string {
	var r report
	r.failed("%s not found in PATH", bold(c.binary)).detail("%v", err).install(c.packageName)
	return r.String()
}
