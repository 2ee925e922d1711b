//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"os/user"
	"runtime"
)

// Actor identifies who runs the synchronization.
type Actor struct {
	// Hostname is the machine name.
	Hostname string
	// Username is the system user running modsync.
	Username string
	// Elevated is true when running as root. Always false on Windows,
	// where elevation cannot be read without extra APIs.
	Elevated bool
}

// DetectActor gathers host and user information for logging.
func DetectActor() (*Actor, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}

	return &Actor{
		Hostname: hostname,
		Username: currentUser.Username,
		Elevated: runtime.GOOS != "windows" && os.Geteuid() == 0,
	}, nil
}
