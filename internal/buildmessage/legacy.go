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

package buildmessage

import (
	"fmt"
	"os"

	"golang.org/x/mod/semver"

	"bennypowers.dev/cem/internal/version"
)

// ErrLegacyLinkerUnsupported reports that METEOR_LINKER names a linker
// generation this module never implemented. We
// took the "flag removal, sole new path" side of that question, so any
// value other than "new" or unset is a hard failure rather than a silent
// fallback to behaviour this module doesn't have.
var ErrLegacyLinkerUnsupported = fmt.Errorf("buildmessage: %w", ErrRuntimeRequired)

// CheckLegacyLinkerFlag inspects METEOR_LINKER and returns an error naming
// the unsupported value when it is set to anything but "new".
func CheckLegacyLinkerFlag() error {
	v := os.Getenv("METEOR_LINKER")
	if v == "" || v == "new" {
		return nil
	}
	return fmt.Errorf("METEOR_LINKER=%q is not supported; only the new linker ships here: %w", v, ErrLegacyLinkerUnsupported)
}

// ErrLinkerTooOld reports that this binary's version is older than a
// --min-linker-version constraint supplied by the caller.
var ErrLinkerTooOld = fmt.Errorf("buildmessage: %w", ErrRuntimeRequired)

// CheckMinLinkerVersion compares this build's version against required
// (bare semver, e.g. "1.4.0", no leading "v") using x/mod/semver, the same
// canonicalize-then-compare pattern the rest of this module's dependency
// set uses for version gates. An empty required is always satisfied; an
// unparseable required or current version fails closed.
func CheckMinLinkerVersion(required string) error {
	if required == "" {
		return nil
	}
	current := semver.Canonical("v" + version.GetVersion())
	want := semver.Canonical("v" + required)
	if current == "" || want == "" {
		return fmt.Errorf("buildmessage: cannot compare linker versions (have %q, want %q): %w", version.GetVersion(), required, ErrLinkerTooOld)
	}
	if semver.Compare(current, want) < 0 {
		return fmt.Errorf("buildmessage: linker version %s is older than required %s: %w", version.GetVersion(), required, ErrLinkerTooOld)
	}
	return nil
}
