/*
 * hooks.go, part of goemle.
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

package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/rmera/goemle/embed"
)

// Device is where an ML potential runs: cpu, cuda or cuda:N.
type Device string

// ParseDevice validates s and returns it as a Device.
func ParseDevice(s string) (Device, error) {
	d := strings.ToLower(strings.TrimSpace(s))
	if d == "cpu" || d == "cuda" {
		return Device(d), nil
	}
	if idx, ok := strings.CutPrefix(d, "cuda:"); ok {
		if n, err := strconv.Atoi(idx); err == nil && n >= 0 {
			return Device(d), nil
		}
	}
	return "", fmt.Errorf("invalid device %q, use cpu, cuda or cuda:N", s)
}

// Index returns the accelerator index of the device, or -1 for the CPU.
func (D Device) Index() int {
	if D == "cpu" {
		return -1
	}
	if idx, ok := strings.CutPrefix(string(D), "cuda:"); ok {
		n, _ := strconv.Atoi(idx)
		return n
	}
	return 0
}

func DeviceHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(Device("")) {
			return data, nil
		}
		return ParseDevice(data.(string))
	}
}

func MethodHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(embed.Method("")) {
			return data, nil
		}
		return embed.ParseMethod(data.(string))
	}
}
