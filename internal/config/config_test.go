/*
 * config_test.go, part of goemle.
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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	emle "github.com/rmera/goemle"
	"github.com/rmera/goemle/embed"
)

func flags(Te *testing.T, args ...string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Flags(fs)
	require.NoError(Te, fs.Parse(args))
	return fs
}

func TestDefaults(Te *testing.T) {
	C, err := Load(flags(Te))
	require.NoError(Te, err)
	assert.Equal(Te, "localhost:10000", C.Address())
	assert.Equal(Te, "xtb", C.Backend)
	assert.Equal(Te, embed.Electrostatic, C.Method)
	assert.Equal(Te, Device("cpu"), C.Device)
	assert.Equal(Te, 1, C.LogCadence)
	assert.Equal(Te, 100, C.Retries)
	assert.Equal(Te, 2*time.Second, C.RetryDelay)
	assert.True(Te, C.Spawn)
	assert.Empty(Te, C.Lambda)
	assert.Nil(Te, C.Charges())
}

func TestEnvironment(Te *testing.T) {
	Te.Setenv("EMLE_PORT", "12345")
	Te.Setenv("EMLE_HOST", "0.0.0.0")
	Te.Setenv("EMLE_METHOD", "MECHANICAL")
	Te.Setenv("EMLE_DEVICE", "cuda:1")
	Te.Setenv("EMLE_RETRY_DELAY", "250ms")
	Te.Setenv("EMLE_LAMBDA_INTERPOLATE", "0,1")
	Te.Setenv("EMLE_INTERPOLATE_STEPS", "20")
	Te.Setenv("EMLE_FF_TOPOLOGY", "qm.itp")
	Te.Setenv("EMLE_MM_CHARGES", "-0.834,0.417,0.417")
	C, err := Load(nil)
	require.NoError(Te, err)
	assert.Equal(Te, "0.0.0.0:12345", C.Address())
	assert.Equal(Te, embed.Mechanical, C.Method)
	assert.Equal(Te, 1, C.Device.Index())
	assert.Equal(Te, 250*time.Millisecond, C.RetryDelay)
	assert.Equal(Te, []float64{0, 1}, C.Lambda)
	assert.Equal(Te, 20, C.InterpolateSteps)
	assert.Equal(Te, []float64{-0.834, 0.417, 0.417}, C.Charges())
}

func TestAddress(Te *testing.T) {
	for _, c := range []struct {
		host string
		want string
	}{
		{"localhost", "localhost:12345"},
		{"127.0.0.1", "127.0.0.1:12345"},
		{"::1", "[::1]:12345"},
	} {
		Te.Setenv("EMLE_HOST", c.host)
		Te.Setenv("EMLE_PORT", "12345")
		C, err := Load(nil)
		require.NoError(Te, err)
		assert.Equal(Te, c.want, C.Address(), c.host)
	}
}

func TestFlagsOverEnvironment(Te *testing.T) {
	Te.Setenv("EMLE_PORT", "12345")
	C, err := Load(flags(Te, "--port", "23456", "--lambda-interpolate", "0.5", "--ff-topology", "qm.itp", "--backend", "ORCA"))
	require.NoError(Te, err)
	assert.Equal(Te, 23456, C.Port)
	assert.Equal(Te, []float64{0.5}, C.Lambda)
	assert.Equal(Te, "orca", C.Backend)
	assert.Empty(Te, C.QM().OrcaCommand)
}

func TestChargesFile(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "charges.txt")
	require.NoError(Te, os.WriteFile(name, []byte("-0.834\n0.417\n0.417\n"), 0o644))
	C, err := Load(flags(Te, "--mm-charges", name, "--method", "mm"))
	require.NoError(Te, err)
	assert.Equal(Te, []float64{-0.834, 0.417, 0.417}, C.Charges())
}

func TestConfigFile(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "emle.yaml")
	require.NoError(Te, os.WriteFile(name, []byte("backend: mlp\nmlp-models: [a.pt, b.pt]\nlog: 5\n"), 0o644))
	C, err := Load(flags(Te, "--config", name))
	require.NoError(Te, err)
	assert.Equal(Te, []string{"a.pt", "b.pt"}, C.MLPModels)
	assert.Equal(Te, 5, C.LogCadence)
}

func TestInvalid(Te *testing.T) {
	cases := map[string][]string{
		"port":        {"--port", "0"},
		"backend":     {"--backend", "gaussian"},
		"method":      {"--method", "quantum"},
		"device":      {"--device", "tpu"},
		"cadence":     {"--log", "0"},
		"retries":     {"--retries", "0"},
		"lambda":      {"--lambda-interpolate", "0,1.5", "--ff-topology", "a.itp"},
		"three":       {"--lambda-interpolate", "0,0.5,1", "--ff-topology", "a.itp"},
		"reference":   {"--lambda-interpolate", "0,1"},
		"mlp":         {"--backend", "mlp"},
		"ff":          {"--backend", "ff"},
		"charges":     {"--mm-charges", filepath.Join(Te.TempDir(), "missing.txt")},
		"fixed":       {"--method", "mm"},
		"config file": {"--config", filepath.Join(Te.TempDir(), "missing.yaml")},
	}
	for name, args := range cases {
		_, err := Load(flags(Te, args...))
		assert.ErrorIs(Te, err, emle.ErrConfiguration, name)
	}
}

func TestDevice(Te *testing.T) {
	for in, idx := range map[string]int{"cpu": -1, "CUDA": 0, "cuda:3": 3} {
		d, err := ParseDevice(in)
		require.NoError(Te, err, in)
		assert.Equal(Te, idx, d.Index(), in)
	}
	for _, in := range []string{"cuda:", "cuda:-1", "gpu"} {
		_, err := ParseDevice(in)
		assert.Error(Te, err, in)
	}
}
