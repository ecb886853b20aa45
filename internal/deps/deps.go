// Package deps reports whether host binaries blurchain shells out to exist.
package deps

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Requirement names an external command.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a requirement.
type Status struct {
	Requirement
	Available bool
	Path      string
	Detail    string
}

// CheckBinaries resolves every requirement on PATH.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		status := Status{Requirement: req}
		switch {
		case req.Command == "":
			status.Detail = "command not configured"
		default:
			path, err := exec.LookPath(req.Command)
			if err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", req.Command)
				break
			}
			status.Available = true
			status.Path = path
		}
		results = append(results, status)
	}
	return results
}

// OpenerCommand returns the desktop launcher used to open saved images.
func OpenerCommand() string {
	switch runtime.GOOS {
	case "darwin":
		return "open"
	case "windows":
		return "rundll32"
	default:
		return "xdg-open"
	}
}

// Opener is the requirement for the --open flag.
func Opener() Requirement {
	return Requirement{
		Name:        "Opener",
		Command:     OpenerCommand(),
		Description: "Opens saved images with --open",
		Optional:    true,
	}
}
