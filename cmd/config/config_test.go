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

package config

import "testing"

func TestCloneCopiesFieldsIndependently(t *testing.T) {
	cfg := &LinkConfig{
		ProjectDir: "/project",
		ConfigFile: "/project/.cem-link.yaml",
		BundleArch: "web.browser",
		CacheDir:   "/cache",
		Verbose:    true,
	}

	clone := cfg.Clone()
	if clone == cfg {
		t.Fatal("Clone should return a distinct pointer")
	}
	if *clone != *cfg {
		t.Fatalf("Clone should copy all fields: got %+v, want %+v", *clone, *cfg)
	}

	clone.ProjectDir = "/other"
	if cfg.ProjectDir == "/other" {
		t.Fatal("mutating the clone should not affect the original")
	}
}

func TestCloneNilReceiverReturnsNil(t *testing.T) {
	var cfg *LinkConfig
	if clone := cfg.Clone(); clone != nil {
		t.Fatalf("Clone of a nil *LinkConfig should return nil, got %+v", clone)
	}
}
