/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package prelink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformBareFileLowersTypeScript(t *testing.T) {
	out, err := TransformBareFile("const x: number = 1;\nexport { x };", "a.ts")
	require.NoError(t, err)
	assert.NotContains(t, out.Code, ": number")
	assert.NotNil(t, out.Map)
}

func TestTransformBareFileReportsSyntaxError(t *testing.T) {
	_, err := TransformBareFile("const x: = ;", "bad.ts")
	require.Error(t, err)
}

func TestTransformBareFileDefaultsToPlainJS(t *testing.T) {
	out, err := TransformBareFile("const x = 1;", "a.js")
	require.NoError(t, err)
	assert.Contains(t, out.Code, "const x = 1;")
}
