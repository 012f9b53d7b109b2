/*
 * lambda_test.go, part of goemle.
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

package lambda

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	emle "github.com/rmera/goemle"
)

func TestLinearSchedule(Te *testing.T) {
	S, err := New([]float64{0, 1}, 50)
	require.NoError(Te, err)
	assert.Equal(Te, Linear, S.State())
	assert.Equal(Te, 0.0, S.Lambda())
	for i := 1; i <= 50; i++ {
		S.Advance()
		if i < 50 {
			assert.InDelta(Te, float64(i)/50, S.Lambda(), 1e-12, "step %d", i)
			assert.Equal(Te, Linear, S.State())
		}
	}
	assert.Equal(Te, 1.0, S.Lambda())
	assert.Equal(Te, Complete, S.State())
	for i := 0; i < 10; i++ {
		S.Advance()
		assert.Equal(Te, 1.0, S.Lambda())
	}
}

func TestDecreasingSchedule(Te *testing.T) {
	S, err := NewLinear(0.8, 0.2, 3)
	require.NoError(Te, err)
	S.Advance()
	assert.InDelta(Te, 0.6, S.Lambda(), 1e-12)
	S.Advance()
	S.Advance()
	S.Advance()
	assert.Equal(Te, 0.2, S.Lambda())
}

func TestSetOverrides(Te *testing.T) {
	S, _ := NewLinear(0, 1, 10)
	S.Advance()
	require.NoError(Te, S.Set(0.3))
	assert.Equal(Te, Fixed, S.State())
	for i := 0; i < 20; i++ {
		S.Advance()
		assert.Equal(Te, 0.3, S.Lambda())
	}

	D := NewDisabled()
	assert.False(Te, D.Enabled())
	require.NoError(Te, D.Set(0.7))
	assert.True(Te, D.Enabled())
	assert.Equal(Te, Fixed, D.State())

	err := S.Set(1.5)
	require.Error(Te, err)
	assert.True(Te, errors.Is(err, emle.ErrMalformedRequest))
	assert.Equal(Te, 0.3, S.Lambda())
}

func TestNew(Te *testing.T) {
	cases := []struct {
		name   string
		values []float64
		steps  int
		state  State
		lambda float64
		fail   bool
	}{
		{"disabled", nil, 0, Disabled, 0, false},
		{"fixed", []float64{0.25}, 0, Fixed, 0.25, false},
		{"zero steps", []float64{0, 1}, 0, Complete, 1, false},
		{"out of range", []float64{-0.1}, 0, Disabled, 0, true},
		{"too many", []float64{0, 0.5, 1}, 10, Disabled, 0, true},
		{"negative steps", []float64{0, 1}, -1, Disabled, 0, true},
	}
	for _, c := range cases {
		S, err := New(c.values, c.steps)
		if c.fail {
			require.Error(Te, err, c.name)
			assert.True(Te, errors.Is(err, emle.ErrConfiguration), c.name)
			continue
		}
		require.NoError(Te, err, c.name)
		assert.Equal(Te, c.state, S.State(), c.name)
		assert.Equal(Te, c.lambda, S.Lambda(), c.name)
	}
}
