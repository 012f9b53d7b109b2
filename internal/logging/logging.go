/*
 * logging.go, part of goemle.
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

// Package logging builds the zap loggers used by the server and the client shim.
package logging

import (
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	emle "github.com/rmera/goemle"
)

// ParseLevel returns the zap level called level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, emle.Errorf(emle.Configuration, "logging.ParseLevel", "unknown log level %q", level)
}

// New returns a logger writing to w at the given level, in JSON if json is true
// and in a console format otherwise.
func New(w io.Writer, level string, json bool) (*zap.Logger, error) {
	l, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	pe := zap.NewProductionEncoderConfig()
	pe.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if json {
		enc = zapcore.NewJSONEncoder(pe)
	} else {
		pe.ConsoleSeparator = " "
		pe.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(pe)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(w), l)
	return zap.New(core), nil
}

// Error returns the fields describing err: the error itself and, for
// goemle errors, its kind and the trace of functions it went through.
func Error(err error) []zap.Field {
	f := []zap.Field{zap.Error(err), zap.String("kind", string(emle.KindOf(err)))}
	if e, ok := err.(*emle.Error); ok && e.Trace() != "" {
		f = append(f, zap.String("trace", e.Trace()))
	}
	return f
}
