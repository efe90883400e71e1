//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	ps "github.com/mitchellh/go-ps"
)

// ErrAlreadyRunning is returned when another agent owns the devices.
var ErrAlreadyRunning = errors.New("another instance is already running")

// Host describes the machine the agent runs on.
type Host struct {
	// Hostname of the machine.
	Hostname string
	// PID of this process.
	PID int
	// Executable is the base name of this process binary.
	Executable string
}

// DetectHost gathers host information for startup logs.
func DetectHost() (*Host, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}

	executable, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("executable: %w", err)
	}

	return &Host{
		Hostname:   hostname,
		PID:        os.Getpid(),
		Executable: filepath.Base(executable),
	}, nil
}

// FindOtherInstance returns the PID of another process running the
// executable processName, or 0 when there is none.
func FindOtherInstance(processName string) (int, error) {
	processList, err := ps.Processes()
	if err != nil {
		return 0, fmt.Errorf("list processes: %w", err)
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() != processName {
			continue
		}

		return process.Pid(), nil
	}

	return 0, nil
}

// EnsureSingleInstance fails when another process runs processName.
func EnsureSingleInstance(processName string) error {
	pid, err := FindOtherInstance(processName)
	if err != nil {
		return err
	}

	if pid != 0 {
		return fmt.Errorf("%w: %s with PID %d", ErrAlreadyRunning, processName, pid)
	}

	return nil
}
