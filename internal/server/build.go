/*
 * build.go, part of goemle.
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

package server

import (
	"context"
	"os"

	"go.uber.org/zap"

	emle "github.com/rmera/goemle"
	"github.com/rmera/goemle/embed"
	"github.com/rmera/goemle/internal/config"
	"github.com/rmera/goemle/lambda"
	"github.com/rmera/goemle/qm"
)

// New binds the endpoint described by C, then builds the session and the
// server. A launch that finds the endpoint taken fails before touching the
// energy log or the records. Every failure is a configuration error.
func New(ctx context.Context, C *config.Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ln, err := Bind(C.Address())
	if err != nil {
		return nil, err
	}
	S, elog, err := NewSessionFromConfig(ctx, C, log)
	if err != nil {
		ln.Close()
		return nil, err
	}
	srv, err := NewServer(ln, S, C.RecordsDir, log)
	if err != nil {
		S.Close()
		if elog != nil {
			elog.Close()
		}
		return nil, err
	}
	if elog != nil {
		srv.OnClose(elog.Close)
	}
	if C.MetricsAddr != "" {
		if err := srv.ServeMetrics(C.MetricsAddr); err != nil {
			srv.Close()
			return nil, err
		}
	}
	return srv, nil
}

// OpenEnergyLog opens name for appending, creating it if needed.
func OpenEnergyLog(name string) (*os.File, error) {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, emle.Errorf(emle.Configuration, "OpenEnergyLog", "%w", err)
	}
	return f, nil
}

// NewSessionFromConfig loads the backend, the embedding model and the MM reference
// named in C. The returned file is the energy log, nil if none is written.
func NewSessionFromConfig(ctx context.Context, C *config.Config, log *zap.Logger) (*Session, *os.File, error) {
	var ref *qm.FFBackend
	var err error
	if C.FFTopology != "" {
		if ref, err = qm.NewFFBackend(C.FFTopology); err != nil {
			return nil, nil, err
		}
	}
	charges := C.Charges()
	if ref != nil {
		if len(charges) == 0 {
			charges = ref.Charges()
		} else if len(charges) != ref.NAtoms() {
			return nil, nil, emle.Errorf(emle.Configuration, "NewSessionFromConfig", "%d mm-charges for the %d atoms of %s", len(charges), ref.NAtoms(), C.FFTopology)
		}
	}
	var corr embed.Corrector
	switch C.Method {
	case embed.None:
	case embed.FixedMM:
		if corr, err = embed.New(embed.FixedMM, nil, charges); err != nil {
			return nil, nil, err
		}
	default:
		params, err := embed.LoadParams(C.EmleModel)
		if err != nil {
			return nil, nil, err
		}
		if ok, known := params.Compatible(C.Backend); !known {
			log.Warn("the embedding model doesn't declare its backend, compatibility can't be checked", zap.String("model", params.Name), zap.String("backend", C.Backend))
		} else if !ok {
			log.Warn("the embedding model was trained against another backend", zap.String("model", params.Name), zap.String("model_backend", params.Backend), zap.String("backend", C.Backend))
		}
		if corr, err = embed.New(C.Method, params, nil); err != nil {
			return nil, nil, err
		}
	}
	sched, err := lambda.New(C.Lambda, C.InterpolateSteps)
	if err != nil {
		return nil, nil, err
	}
	O := Options{
		Corrector: corr,
		Scheduler: sched,
		Cadence:   C.LogCadence,
		History:   C.History,
		Logger:    log,
	}
	if sched.Enabled() && ref == nil {
		return nil, nil, emle.NewError(emle.Configuration, "lambda interpolation needs ff-topology", "NewSessionFromConfig")
	}
	if ref != nil {
		//also kept without interpolation, so set-lambda can switch it on.
		O.Reference = ref
		if O.RefEmbedding, err = embed.New(embed.FixedMM, nil, charges); err != nil {
			return nil, nil, err
		}
	}
	B, err := qm.New(ctx, C.Backend, C.QM())
	if err != nil {
		return nil, nil, err
	}
	var elog *os.File
	if C.EnergyLog != "" {
		if elog, err = OpenEnergyLog(C.EnergyLog); err != nil {
			qm.Close(B)
			return nil, nil, err
		}
		O.EnergyLog = elog
	}
	S, err := NewSession(B, O)
	if err != nil {
		qm.Close(B)
		if elog != nil {
			elog.Close()
		}
		return nil, nil, err
	}
	log.Info("session ready", zap.String("backend", B.Name()), zap.String("method", S.Method()), zap.String("embedding", embed.Describe(corr)), zap.String("lambda", sched.State().String()), zap.Float64("lambda_value", sched.Lambda()))
	return S, elog, nil
}
