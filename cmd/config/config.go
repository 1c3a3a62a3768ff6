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

// LinkConfig carries the `link` command's settings, bound from CLI flags,
// a project config file, and environment overrides via viper.
type LinkConfig struct {
	ProjectDir string `mapstructure:"projectDir" yaml:"projectDir"`
	ConfigFile string `mapstructure:"configFile" yaml:"configFile"`
	// Bundle architecture tag applied to every InputFile linked this run
	// (e.g. "web.browser", "os").
	BundleArch string `mapstructure:"bundleArch" yaml:"bundleArch"`
	// Prepend the source-map banner comment to the emitted bundle.
	IncludeSourceMapInstructions bool `mapstructure:"includeSourceMapInstructions" yaml:"includeSourceMapInstructions"`
	// Prelink cache directory; empty falls back to prelink.DefaultCacheDir().
	// The prelink caches are in-memory only and never write to it.
	CacheDir string `mapstructure:"cacheDir" yaml:"cacheDir"`
	// Verbose logging output.
	Verbose bool `mapstructure:"verbose" yaml:"verbose"`
}

func (c *LinkConfig) Clone() *LinkConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}
