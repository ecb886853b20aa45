package presenter

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/skratchdot/open-golang/open"

	"blurchain/internal/fileutil"
)

// ErrNoHandler reports that nothing on the host can open a locator.
var ErrNoHandler = errors.New("no application can open the result")

// Opener shows a result locator to the user.
type Opener interface {
	Open(locator string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(locator string) error

// Open implements Opener.
func (f OpenerFunc) Open(locator string) error { return f(locator) }

// SystemOpener opens local files with the desktop's default application.
type SystemOpener struct{}

// Open implements Opener.
func (SystemOpener) Open(locator string) error {
	path, err := fileutil.PathFromLocator(locator)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoHandler, err)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %v", ErrNoHandler, err)
	}
	if err := open.Run(path); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrNoHandler, err)
		}
		return err
	}
	return nil
}
