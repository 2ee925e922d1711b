//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"os"
	"strings"

	"github.com/mitchellh/go-ps"
)

// powerShellExecutables are the host process names of PowerShell sessions.
//
//nolint:gochecknoglobals // Read-only lookup table.
var powerShellExecutables = map[string]struct{}{
	"pwsh":               {},
	"pwsh.exe":           {},
	"powershell.exe":     {},
	"powershell_ise.exe": {},
}

// Process is a running process of interest.
type Process struct {
	// PID is the process identifier.
	PID int
	// Executable is the process image name.
	Executable string
}

// PowerShellProcesses lists running PowerShell sessions other than this process.
func PowerShellProcesses() ([]Process, error) {
	processList, err := ps.Processes()
	if err != nil {
		return nil, err
	}

	return filterPowerShell(processList, os.Getpid()), nil
}

// IsProcessAlive reports whether a process with the PID is running.
func IsProcessAlive(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}

	process, err := ps.FindProcess(pid)
	if err != nil {
		return false, err
	}

	return process != nil, nil
}

func filterPowerShell(processList []ps.Process, selfPID int) []Process {
	var result []Process

	for _, process := range processList {
		if process.Pid() == selfPID {
			continue
		}

		name := strings.ToLower(process.Executable())
		if _, ok := powerShellExecutables[name]; !ok {
			continue
		}

		result = append(result, Process{
			PID:        process.Pid(),
			Executable: process.Executable(),
		})
	}

	return result
}
