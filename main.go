package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/drivestash/drivestash/internal/backup"
	"github.com/drivestash/drivestash/internal/drive"
)

// Exit statuses for the fatal paths. Each failure class terminates the run
// with a distinct non-zero status so wrapping scripts can react.
const (
	exitFailure       = 1
	exitAuth          = 2
	exitMissingFolder = 3
	exitNoFullBackup  = 4
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "drivestash: %v\n", err)
		os.Exit(exitStatus(err))
	}
}

// exitStatus maps an error to the process exit status.
func exitStatus(err error) int {
	var authErr *drive.AuthError

	switch {
	case errors.As(err, &authErr), errors.Is(err, drive.ErrCredentialUnresolved):
		return exitAuth
	case errors.Is(err, backup.ErrMissingFolder):
		return exitMissingFolder
	case errors.Is(err, backup.ErrNoFullBackup):
		return exitNoFullBackup
	default:
		return exitFailure
	}
}
