/*
 * analyze.go, part of goemle.
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

// Package analyze summarizes the energy log written by the server.
package analyze

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	emle "github.com/rmera/goemle"
)

var (
	plainColumns  = []string{"E_vac", "E_tot"}
	lambdaColumns = []string{"lambda", "E(lambda)", "E(lambda=0)", "E(lambda=1)"}
)

// Column summarizes one column of the log, energies in Hartree.
type Column struct {
	Name      string
	N         int
	Min, Max  float64
	Mean, Std float64
}

// Window collects the steps run at one value of lambda. As the energy
// is linear in lambda, dE/dlambda = E(lambda=1) - E(lambda=0).
type Window struct {
	Lambda   float64
	N        int
	MeanDEDL float64
	StdDEDL  float64
}

// Report is the summary of a log.
type Report struct {
	Interpolated bool
	Steps        []int
	Columns      []Column
	//Windows and DeltaF are only set for interpolated runs. DeltaF is the
	//thermodynamic-integration estimate of F(lambda_max)-F(lambda_min), in Hartree.
	Windows []Window
	DeltaF  float64
}

// Read parses an energy log. Comment lines start with '#'.
func Read(r io.Reader) (*Report, error) {
	var cols [][]float64
	R := new(Report)
	in := bufio.NewScanner(r)
	ln := 0
	for in.Scan() {
		ln++
		line := strings.TrimSpace(in.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f := strings.Fields(line)
		if cols == nil {
			switch len(f) {
			case 3:
			case 5:
				R.Interpolated = true
			default:
				return nil, emle.Errorf(emle.MalformedRequest, "analyze.Read", "line %d: %d columns, expected 3 or 5", ln, len(f))
			}
			cols = make([][]float64, len(f)-1)
		}
		if len(f) != len(cols)+1 {
			return nil, emle.Errorf(emle.MalformedRequest, "analyze.Read", "line %d: %d columns, expected %d", ln, len(f), len(cols)+1)
		}
		step, err := strconv.Atoi(f[0])
		if err != nil {
			return nil, emle.Errorf(emle.MalformedRequest, "analyze.Read", "line %d: %w", ln, err)
		}
		R.Steps = append(R.Steps, step)
		for i, v := range f[1:] {
			x, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, emle.Errorf(emle.MalformedRequest, "analyze.Read", "line %d: %w", ln, err)
			}
			cols[i] = append(cols[i], x)
		}
	}
	if err := in.Err(); err != nil {
		return nil, emle.Errorf(emle.MalformedRequest, "analyze.Read", "%w", err)
	}
	if cols == nil {
		return nil, emle.NewError(emle.MalformedRequest, "no data in the energy log", "analyze.Read")
	}
	names := plainColumns
	if R.Interpolated {
		names = lambdaColumns
	}
	for i, c := range cols {
		mean, std := stat.MeanStdDev(c, nil)
		if len(c) < 2 {
			std = 0
		}
		R.Columns = append(R.Columns, Column{Name: names[i], N: len(c), Min: floats.Min(c), Max: floats.Max(c), Mean: mean, Std: std})
	}
	if R.Interpolated {
		R.windows(cols[0], cols[2], cols[3])
	}
	return R, nil
}

func (R *Report) windows(l, e0, e1 []float64) {
	dedl := make([]float64, len(e1))
	floats.SubTo(dedl, e1, e0)
	byL := make(map[float64][]float64)
	for i, v := range l {
		byL[v] = append(byL[v], dedl[i])
	}
	for v, d := range byL {
		mean, std := stat.MeanStdDev(d, nil)
		if len(d) < 2 {
			std = 0
		}
		R.Windows = append(R.Windows, Window{Lambda: v, N: len(d), MeanDEDL: mean, StdDEDL: std})
	}
	sort.Slice(R.Windows, func(i, j int) bool { return R.Windows[i].Lambda < R.Windows[j].Lambda })
	if len(R.Windows) < 2 {
		return
	}
	x := make([]float64, len(R.Windows))
	y := make([]float64, len(R.Windows))
	for i, w := range R.Windows {
		x[i], y[i] = w.Lambda, w.MeanDEDL
	}
	R.DeltaF = integrate.Trapezoidal(x, y)
}

func ReadFile(name string) (*Report, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, emle.Errorf(emle.Configuration, "analyze.ReadFile", "%w", err)
	}
	defer f.Close()
	return Read(f)
}

// Write prints the report as text.
func (R *Report) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "records\t%d\tsteps\t%d-%d\t\n", len(R.Steps), R.Steps[0], R.Steps[len(R.Steps)-1])
	fmt.Fprintf(tw, "column\tn\tmin\tmax\tmean\tstd\t\n")
	for _, c := range R.Columns {
		fmt.Fprintf(tw, "%s\t%d\t%.8f\t%.8f\t%.8f\t%.8f\t\n", c.Name, c.N, c.Min, c.Max, c.Mean, c.Std)
	}
	if R.Interpolated {
		fmt.Fprintf(tw, "\t\t\t\t\t\t\n")
		fmt.Fprintf(tw, "lambda\tn\t<dE/dl>\tstd\t\t\t\n")
		for _, v := range R.Windows {
			fmt.Fprintf(tw, "%.5f\t%d\t%.8f\t%.8f\t\t\t\n", v.Lambda, v.N, v.MeanDEDL, v.StdDEDL)
		}
		if len(R.Windows) > 1 {
			fmt.Fprintf(tw, "dF (Eh)\t%.8f\tdF (kcal/mol)\t%.4f\t\t\t\n", R.DeltaF, R.DeltaF*emle.H2Kcal)
		}
	}
	return tw.Flush()
}
