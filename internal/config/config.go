/*
 * config.go, part of goemle.
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

// Package config reads the settings shared by the server and the client shim
// from command-line flags, EMLE_* environment variables and an optional YAML file,
// in decreasing order of precedence.
package config

import (
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	emle "github.com/rmera/goemle"
	"github.com/rmera/goemle/embed"
	"github.com/rmera/goemle/lambda"
	"github.com/rmera/goemle/qm"
)

// EnvPrefix is the prefix of the environment variables. EMLE_PORT sets the port option,
// EMLE_ORCA_COMMAND the orca-command option and so on.
const EnvPrefix = "EMLE"

// Config holds every option.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	Backend     string   `mapstructure:"backend"`
	OrcaCommand string   `mapstructure:"orca-command"`
	OrcaMethod  string   `mapstructure:"orca-method"`
	OrcaBasis   string   `mapstructure:"orca-basis"`
	XTBCommand  string   `mapstructure:"xtb-command"`
	XTBMethod   string   `mapstructure:"xtb-method"`
	NCPU        int      `mapstructure:"ncpu"`
	MLPCommand  []string `mapstructure:"mlp-command"`
	MLPModels   []string `mapstructure:"mlp-models"`
	Device      Device   `mapstructure:"device"`
	FFTopology  string   `mapstructure:"ff-topology"`
	Scratch     string   `mapstructure:"scratch"`

	Method    embed.Method `mapstructure:"method"`
	EmleModel string       `mapstructure:"emle-model"`
	//MMCharges are the fixed charges of the QM atoms, as given, a list of
	//values or the name of a file with one value per line.
	MMCharges []string `mapstructure:"mm-charges"`

	Lambda           []float64 `mapstructure:"lambda-interpolate"`
	InterpolateSteps int       `mapstructure:"interpolate-steps"`

	LogCadence int    `mapstructure:"log"`
	EnergyLog  string `mapstructure:"energy-log"`
	History    string `mapstructure:"history"`

	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry-delay"`
	Spawn      bool          `mapstructure:"spawn"`
	RecordsDir string        `mapstructure:"records-dir"`

	MetricsAddr string `mapstructure:"metrics-addr"`
	LogLevel    string `mapstructure:"log-level"`
	LogJSON     bool   `mapstructure:"log-json"`

	charges []float64
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "localhost")
	v.SetDefault("port", 10000)
	v.SetDefault("backend", qm.XTB)
	v.SetDefault("orca-command", "")
	v.SetDefault("orca-method", "")
	v.SetDefault("orca-basis", "")
	v.SetDefault("xtb-command", "xtb")
	v.SetDefault("xtb-method", "gfn2")
	v.SetDefault("ncpu", 1)
	v.SetDefault("mlp-command", []string{})
	v.SetDefault("mlp-models", []string{})
	v.SetDefault("device", "cpu")
	v.SetDefault("ff-topology", "")
	v.SetDefault("scratch", "")
	v.SetDefault("method", string(embed.Electrostatic))
	v.SetDefault("emle-model", "")
	v.SetDefault("mm-charges", []string{})
	v.SetDefault("lambda-interpolate", []float64{})
	v.SetDefault("interpolate-steps", 0)
	v.SetDefault("log", 1)
	v.SetDefault("energy-log", "emle_log.txt")
	v.SetDefault("history", "")
	v.SetDefault("retries", 100)
	v.SetDefault("retry-delay", 2*time.Second)
	v.SetDefault("spawn", true)
	v.SetDefault("records-dir", ".")
	v.SetDefault("metrics-addr", "")
	v.SetDefault("log-level", "info")
	v.SetDefault("log-json", false)
}

// Flags adds the flags for every option to fs. Their defaults are only
// shown in the help, the real defaults live in the viper instance.
func Flags(fs *pflag.FlagSet) {
	v := viper.New()
	setDefaults(v)
	fs.String("config", "", "YAML file with options")
	fs.String("host", v.GetString("host"), "server host")
	fs.Int("port", v.GetInt("port"), "server port")
	fs.String("backend", v.GetString("backend"), "in-vacuo backend: orca, xtb, mlp or ff")
	fs.String("orca-command", "", "full path of the ORCA executable")
	fs.String("orca-method", "", "ORCA method")
	fs.String("orca-basis", "", "ORCA basis set")
	fs.String("xtb-command", v.GetString("xtb-command"), "xtb executable")
	fs.String("xtb-method", v.GetString("xtb-method"), "xtb Hamiltonian: gfn0, gfn1, gfn2 or gfnff")
	fs.Int("ncpu", v.GetInt("ncpu"), "CPUs for the external QM programs")
	fs.StringSlice("mlp-command", nil, "model runner command and arguments")
	fs.StringSlice("mlp-models", nil, "ML potential model files, more than one gives an ensemble")
	fs.String("device", v.GetString("device"), "device for the ML potential: cpu, cuda or cuda:N")
	fs.String("ff-topology", "", "Gromacs topology of the QM region")
	fs.String("scratch", "", "directory for the scratch files of the external programs")
	fs.String("method", v.GetString("method"), "embedding method: electrostatic, mechanical, nonpol, mm or none")
	fs.String("emle-model", "", "YAML file with the embedding model parameters")
	fs.StringSlice("mm-charges", nil, "charges of the QM atoms, or a file with one charge per line")
	fs.StringSlice("lambda-interpolate", nil, "one (fixed) or two (start, end) lambda values")
	fs.Int("interpolate-steps", 0, "steps to go from the start to the end lambda")
	fs.Int("log", v.GetInt("log"), "write the energy log every this many steps")
	fs.String("energy-log", v.GetString("energy-log"), "energy log file")
	fs.String("history", "", "zstd-compressed file for the QM geometries of each step")
	fs.Int("retries", v.GetInt("retries"), "connection attempts of the client")
	fs.Duration("retry-delay", v.GetDuration("retry-delay"), "delay between connection attempts")
	fs.Bool("spawn", v.GetBool("spawn"), "let the client start a server if none is running")
	fs.String("records-dir", v.GetString("records-dir"), "directory for the pid and port records")
	fs.String("metrics-addr", "", "address for the Prometheus /metrics endpoint, empty to disable")
	fs.String("log-level", v.GetString("log-level"), "debug, info, warn or error")
	fs.Bool("log-json", false, "log in JSON")
}

// Load reads the configuration. fs can be nil, then only the environment
// and the defaults are used.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, emle.Errorf(emle.Configuration, "config.Load", "%w", err)
		}
	}
	if name := v.GetString("config"); name != "" {
		v.SetConfigFile(name)
		if err := v.ReadInConfig(); err != nil {
			return nil, emle.Errorf(emle.Configuration, "config.Load", "reading %s: %w", name, err)
		}
	}
	C := new(Config)
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		DeviceHookFunc(),
		MethodHookFunc(),
	))
	if err := v.Unmarshal(C, hooks); err != nil {
		return nil, emle.Errorf(emle.Configuration, "config.Load", "%w", err)
	}
	if err := C.Validate(); err != nil {
		return nil, err
	}
	return C, nil
}

// Validate checks the options and reads the MM charges, if given as a file.
func (C *Config) Validate() error {
	fail := func(format string, a ...any) error {
		return emle.Errorf(emle.Configuration, "Config.Validate", format, a...)
	}
	if C.Port <= 0 || C.Port > 65535 {
		return fail("invalid port %d", C.Port)
	}
	if !slices.Contains([]string{qm.ORCA, qm.XTB, qm.MLP, qm.ForceField}, strings.ToLower(C.Backend)) {
		return fail("unknown backend %q", C.Backend)
	}
	C.Backend = strings.ToLower(C.Backend)
	if C.Backend == qm.MLP && len(C.MLPModels) == 0 {
		return fail("the mlp backend needs at least one model in mlp-models")
	}
	if C.Backend == qm.ForceField && C.FFTopology == "" {
		return fail("the ff backend needs ff-topology")
	}
	if C.Method == "" {
		C.Method = embed.Electrostatic
	}
	if C.LogCadence < 1 {
		return fail("log cadence must be at least 1, got %d", C.LogCadence)
	}
	if C.Retries < 1 {
		return fail("retries must be at least 1, got %d", C.Retries)
	}
	if C.RetryDelay < 0 {
		return fail("negative retry delay")
	}
	if _, err := lambda.New(C.Lambda, C.InterpolateSteps); err != nil {
		return emle.AsKind(err, emle.Configuration, "Config.Validate")
	}
	if len(C.Lambda) > 0 && C.FFTopology == "" {
		return fail("lambda interpolation needs ff-topology for the MM reference")
	}
	var err error
	if C.charges, err = readCharges(C.MMCharges); err != nil {
		return fail("mm-charges: %w", err)
	}
	if C.Method == embed.FixedMM && len(C.charges) == 0 && C.FFTopology == "" {
		return fail("the %s method needs mm-charges or ff-topology", embed.FixedMM)
	}
	return nil
}

// Charges returns the fixed QM charges read from the mm-charges option. It is
// nil if none were given.
func (C *Config) Charges() []float64 {
	return C.charges
}

func readCharges(vals []string) ([]float64, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	if len(vals) == 1 {
		if _, err := strconv.ParseFloat(strings.TrimSpace(vals[0]), 64); err != nil {
			data, err := os.ReadFile(vals[0])
			if err != nil {
				return nil, err
			}
			vals = strings.Fields(string(data))
		}
	}
	ret := make([]float64, len(vals))
	for i, v := range vals {
		q, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, err
		}
		ret[i] = q
	}
	return ret, nil
}

// QM returns the settings for the backends.
func (C *Config) QM() *qm.Config {
	return &qm.Config{
		OrcaCommand: C.OrcaCommand,
		OrcaMethod:  C.OrcaMethod,
		OrcaBasis:   C.OrcaBasis,
		XTBCommand:  C.XTBCommand,
		XTBMethod:   C.XTBMethod,
		NCPU:        C.NCPU,
		MLPCommand:  C.MLPCommand,
		MLPModels:   C.MLPModels,
		Device:      string(C.Device),
		FFTopology:  C.FFTopology,
		Scratch:     C.Scratch,
	}
}

// Address returns host:port, with IPv6 hosts in brackets.
func (C *Config) Address() string {
	return net.JoinHostPort(C.Host, strconv.Itoa(C.Port))
}
