/*
 * history_test.go, part of goemle.
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

package history

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	emle "github.com/rmera/goemle"
	v3 "github.com/rmera/goemle/v3"
)

func TestWriteRead(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "qm.stf")
	W, err := NewWriter(name, 3, map[string]string{"elements": "O H H"})
	require.NoError(Te, err)
	frame, err := v3.NewMatrix([]float64{0, 0, 0.1171, 0, 0.7572, -0.4683, 0, -0.7572, -0.4683})
	require.NoError(Te, err)
	require.NoError(Te, W.WNext(0, frame))
	require.NoError(Te, W.WNext(1, frame.Scaled(2)))
	assert.ErrorIs(Te, W.WNext(2, v3.Zeros(2)), emle.ErrMalformedRequest)
	assert.Equal(Te, 2, W.Frames())
	require.NoError(Te, W.Close())
	require.NoError(Te, W.Close())

	R, hdr, err := Open(name)
	require.NoError(Te, err)
	defer R.Close()
	assert.Equal(Te, "O H H", hdr["elements"])
	assert.Equal(Te, "3", hdr["prec"])
	assert.Equal(Te, 3, R.Len())
	c := v3.Zeros(3)
	step, err := R.Next(c)
	require.NoError(Te, err)
	assert.Equal(Te, 0, step)
	assert.True(Te, v3.Equal(frame, c, 1e-3))
	step, err = R.Next(nil)
	require.NoError(Te, err)
	assert.Equal(Te, 1, step)
	_, err = R.Next(c)
	assert.ErrorIs(Te, err, io.EOF)
}

func TestPrecision(Te *testing.T) {
	dir := Te.TempDir()
	_, err := NewWriter(filepath.Join(dir, "bad.stf"), 1, map[string]string{"prec": "zero"})
	assert.ErrorIs(Te, err, emle.ErrConfiguration)
	_, err = NewWriter(filepath.Join(dir, "empty.stf"), 0, nil)
	assert.ErrorIs(Te, err, emle.ErrConfiguration)

	name := filepath.Join(dir, "fine.stf")
	W, err := NewWriter(name, 1, map[string]string{"prec": "5"})
	require.NoError(Te, err)
	x, _ := v3.NewMatrix([]float64{1.234567, -2.345678, 3.456789})
	require.NoError(Te, W.WNext(7, x))
	require.NoError(Te, W.Close())
	R, _, err := Open(name)
	require.NoError(Te, err)
	defer R.Close()
	c := v3.Zeros(1)
	step, err := R.Next(c)
	require.NoError(Te, err)
	assert.Equal(Te, 7, step)
	assert.InDelta(Te, -2.34568, c.Vec(0)[1], 1e-9)
}
