package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"blurchain/internal/config"
	"blurchain/internal/constraint"
	"blurchain/internal/deps"
	"blurchain/internal/fileutil"
	"blurchain/internal/store"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckImage verifies that a configured input image can be read.
func CheckImage(name, locator string) Result {
	path, err := fileutil.PathFromLocator(locator)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	case info.IsDir():
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckStore opens the run database and reports how many runs it holds.
func CheckStore(ctx context.Context, cfg *config.Config) Result {
	const name = "Run history"
	st, err := store.Open(cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer st.Close()
	runs, err := st.ListRuns(ctx, 0)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d runs)", st.Path(), len(runs))}
}

// CheckPower reports the charging state. It only fails when the save stage
// requires charging and the device is on battery, since runs would then wait.
func CheckPower(ctx context.Context, checker constraint.Checker, requireCharging bool) Result {
	const name = "Power"
	status, err := checker.Check(ctx, constraint.Constraint{RequiresCharging: true})
	if err != nil {
		return Result{Name: name, Passed: !requireCharging, Detail: fmt.Sprintf("unknown (%v)", err)}
	}
	if status.Satisfied {
		return Result{Name: name, Passed: true, Detail: "charging or on mains power"}
	}
	detail := status.Reason
	if requireCharging {
		detail += "; saves wait until charging"
	}
	return Result{Name: name, Passed: !requireCharging, Detail: detail}
}

// CheckNtfy verifies the ntfy server behind topic answers its health endpoint.
func CheckNtfy(ctx context.Context, topic string) Result {
	const name = "Notifications"

	u, err := url.Parse(topic)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Result{Name: name, Detail: fmt.Sprintf("invalid topic url %q", topic)}
	}
	health := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/v1/health"}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, health.String(), nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", u.Host)}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (server unreachable)"
	}
	return err.Error()
}

// CheckOpener reports whether a desktop launcher is available for --open. A
// missing launcher never fails the check because opening is optional.
func CheckOpener() Result {
	const name = "Opener"
	status := deps.CheckBinaries([]deps.Requirement{deps.Opener()})[0]
	if !status.Available {
		return Result{Name: name, Passed: true, Detail: status.Detail + "; --open will be skipped"}
	}
	return Result{Name: name, Passed: true, Detail: status.Path}
}
