/*
 * records.go, part of goemle.
 *
 *
 * Copyright 2026 The goemle Authors
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

// Package records handles the files where a running server leaves its
// process id and port, so clients can find it or tell that it died.
package records

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const (
	PIDFile  = "emle_pid.txt"
	PortFile = "emle_port.txt"
)

// Write stores pid and port in dir. Each file is replaced atomically.
func Write(dir string, pid, port int) error {
	if err := writeAtomic(dir, PIDFile, strconv.Itoa(pid)); err != nil {
		return err
	}
	return writeAtomic(dir, PortFile, strconv.Itoa(port))
}

func writeAtomic(dir, name, content string) error {
	tmp, err := os.CreateTemp(dir, name+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()
	if _, err := tmp.WriteString(content + "\n"); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write record %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close record %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("rename record %s: %w", name, err)
	}
	return nil
}

// Read returns the pid and port stored in dir. The error wraps
// os.ErrNotExist if either record is missing.
func Read(dir string) (pid, port int, err error) {
	if pid, err = readInt(filepath.Join(dir, PIDFile)); err != nil {
		return 0, 0, err
	}
	if port, err = readInt(filepath.Join(dir, PortFile)); err != nil {
		return 0, 0, err
	}
	return pid, port, nil
}

func readInt(name string) (int, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("record %s: %w", name, err)
	}
	return n, nil
}

// Remove deletes the records in dir, if they exist.
func Remove(dir string) error {
	var errs []error
	for _, n := range []string{PIDFile, PortFile} {
		if err := os.Remove(filepath.Join(dir, n)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Alive reports whether there is a process with the given pid.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Live returns the port of the server recorded in dir, and true, if
// the records exist and the process they name is running.
func Live(dir string) (int, bool) {
	pid, port, err := Read(dir)
	if err != nil || !Alive(pid) {
		return 0, false
	}
	return port, true
}
