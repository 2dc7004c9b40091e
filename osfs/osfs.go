// Package osfs holds the one-shot file-system and environment calls a
// runtime needs next to its networking: directory creation, environment
// edits, removal, metadata and directory listing.
package osfs

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/wippyai/hostlayer/errors"
)

// Mkdir creates path with owner-only permissions.
func Mkdir(path string) error {
	if err := unix.Mkdir(path, unix.S_IRWXU); err != nil {
		return errors.FromErrno(errors.PhaseFile, err)
	}
	return nil
}

// Setenv sets name to value. With overwrite false an existing variable is
// left untouched.
func Setenv(name, value string, overwrite bool) error {
	if err := checkEnvName(name); err != nil {
		return err
	}
	if !overwrite {
		if _, ok := os.LookupEnv(name); ok {
			return nil
		}
	}
	if err := os.Setenv(name, value); err != nil {
		return errors.FromErrno(errors.PhaseFile, err)
	}
	return nil
}

// Unsetenv removes name from the environment.
func Unsetenv(name string) error {
	if err := checkEnvName(name); err != nil {
		return err
	}
	if err := os.Unsetenv(name); err != nil {
		return errors.FromErrno(errors.PhaseFile, err)
	}
	return nil
}

func checkEnvName(name string) error {
	if name == "" || strings.ContainsAny(name, "=\x00") {
		return errors.New(errors.PhaseFile, errors.KindInvalidArgument).
			Code(int(unix.EINVAL)).
			Detail("invalid environment variable name %q", name).
			Build()
	}
	return nil
}

// Remove deletes a file, or an empty directory when path is one.
func Remove(path string) error {
	err := unix.Unlink(path)
	if err == nil {
		return nil
	}
	rmErr := unix.Rmdir(path)
	if rmErr == nil {
		return nil
	}
	// ENOTDIR means path was a file after all; the unlink error says why.
	if rmErr == unix.ENOTDIR {
		return errors.FromErrno(errors.PhaseFile, err)
	}
	return errors.FromErrno(errors.PhaseFile, rmErr)
}
