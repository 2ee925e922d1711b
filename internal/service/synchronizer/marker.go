package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/oshokin/modsync/internal/logger"
	"github.com/oshokin/modsync/internal/service/common"
)

const (
	// MarkerFilename marks that a synchronization is running right now.
	MarkerFilename = "modsync-run.marker"

	markerFileMode os.FileMode = 0o600
	markerDirMode  os.FileMode = 0o755

	// markerGracePeriod is how long a marker without a PID counts as owned.
	markerGracePeriod = 30 * time.Second
)

// ErrAlreadyRunning is returned when another modsync process holds the marker.
var ErrAlreadyRunning = errors.New("another synchronization is running")

// runMarker is the marker file owned by this process.
type runMarker struct {
	path string
}

// acquireMarker creates the marker in dir, removing it first when the
// process that wrote it is gone.
func acquireMarker(ctx context.Context, dir string) (*runMarker, error) {
	if err := os.MkdirAll(dir, markerDirMode); err != nil {
		return nil, fmt.Errorf("create marker directory: %w", err)
	}

	path := filepath.Join(dir, MarkerFilename)

	for attempt := 0; attempt < 2; attempt++ {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, markerFileMode)
		if err == nil {
			_, writeErr := file.WriteString(strconv.Itoa(os.Getpid()))
			closeErr := file.Close()

			if err = errors.Join(writeErr, closeErr); err != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("write marker: %w", err)
			}

			return &runMarker{path: path}, nil
		}

		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create marker: %w", err)
		}

		if err = removeStaleMarker(ctx, path); err != nil {
			return nil, err
		}
	}

	return nil, ErrAlreadyRunning
}

// removeStaleMarker deletes the marker unless its owner is still running.
func removeStaleMarker(ctx context.Context, path string) error {
	contents, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read marker: %w", err)
	}

	pid, parseErr := strconv.Atoi(strings.TrimSpace(string(contents)))

	var alive bool

	if parseErr != nil || pid <= 0 {
		// The owner may not have written its PID yet.
		alive, err = isFreshMarker(path)
	} else {
		alive, err = common.IsProcessAlive(pid)
	}

	if err != nil {
		return fmt.Errorf("check marker owner: %w", err)
	}

	if alive {
		return fmt.Errorf("pid %d: %w", pid, ErrAlreadyRunning)
	}

	logger.InfoKV(ctx, "Removing stale run marker", "path", path, "pid", pid)

	if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale marker: %w", err)
	}

	return nil
}

// isFreshMarker reports whether the marker was written within the grace period.
func isFreshMarker(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, err
	}

	return time.Since(info.ModTime()) < markerGracePeriod, nil
}

// release removes the marker.
func (m *runMarker) release(ctx context.Context) {
	if m == nil {
		return
	}

	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnKV(ctx, "Unable to remove run marker", "path", m.path, "error", err)
	}
}
