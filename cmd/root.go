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

package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/cem/cmd/config"
	"bennypowers.dev/cem/internal/logging"
	"bennypowers.dev/cem/internal/prelink"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cem-link",
	Short: "Link compiled package files into a single bundle",
	Long: `Takes a directory (or JSON batch) of already-compiled package files
and links them into a single bundle plus source map, the way a bundler's
linker phase combines per-file output from a package compiler.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func resolveProjectDir(configPath, projectDirFlag string) (string, bool) {
	if projectDirFlag != "" {
		abs, err := expandPath(projectDirFlag)
		if err != nil {
			logging.Error("Invalid --project-dir: %v", err)
			os.Exit(1)
		}
		return abs, true
	}
	configAbs, err := filepath.Abs(configPath)
	if err != nil {
		logging.Error("Invalid --config: %v", err)
		os.Exit(1)
	}
	configDir := filepath.Dir(configAbs)
	base := filepath.Base(configDir)
	if base == ".config" || base == "config" {
		return filepath.Dir(configDir), true
	}
	// fallback: use current working directory
	cwd, err := os.Getwd()
	if err != nil {
		logging.Error("Unable to get current working directory: %v", err)
		os.Exit(1)
	}
	if !strings.HasPrefix(configAbs, cwd) {
		logging.Warning("--config is outside of current dir, guessing project root as %s", cwd)
	}
	return cwd, false
}

// expandPath expands ~, handles relative and absolute paths
func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		// Support ~/ and ~
		if path == "~" {
			path = home
		} else if strings.HasPrefix(path, "~/") {
			path = filepath.Join(home, path[2:])
		}
		// Note: ~user/ is not supported (Go stdlib doesn't provide this)
	}
	return filepath.Abs(path)
}

func initConfig() {
	var err error
	cfgFile := viper.GetString("configFile")
	projectDir, shouldChange := resolveProjectDir(cfgFile, viper.GetString("projectDir"))
	viper.Set("projectDir", projectDir)
	viper.AddConfigPath(projectDir)
	viper.SetConfigType("yaml")
	viper.SetConfigName(".cem-link")
	if shouldChange {
		if err := os.Chdir(projectDir); err != nil {
			cobra.CheckErr(errors.Join(err, errors.New("failed to change into project directory")))
		}
	}
	if viper.GetBool("verbose") {
		logging.SetDebugEnabled(true)
	}
	logging.Debug("Using project directory: %s", projectDir)
	if cfgFile != "" {
		cfgFile, err = expandPath(cfgFile)
		cobra.CheckErr(err)
	} else {
		cfgFile, err = expandPath(filepath.Join(projectDir, ".cem-link.yaml"))
		cobra.CheckErr(err)
	}
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err == nil {
			logging.Debug("Using config file: %s", cfgFile)
		}
	}
	viper.Set("configFile", cfgFile)

	viper.AutomaticEnv()
}

// loadConfig assembles a *config.LinkConfig from bound viper values. Called
// by each subcommand after its own flags are bound, so flag precedence
// (flag > env > config file > default) comes from viper itself.
func loadConfig() *config.LinkConfig {
	cacheDir := viper.GetString("cacheDir")
	if cacheDir == "" {
		cacheDir = prelink.DefaultCacheDir()
	}
	return &config.LinkConfig{
		ProjectDir:                   viper.GetString("projectDir"),
		ConfigFile:                   viper.GetString("configFile"),
		BundleArch:                   viper.GetString("bundleArch"),
		IncludeSourceMapInstructions: viper.GetBool("includeSourceMapInstructions"),
		CacheDir:                     cacheDir,
		Verbose:                      viper.GetBool("verbose"),
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("config", "", "config file (default is $PROJECT_DIR/.cem-link.yaml)")
	rootCmd.PersistentFlags().String("project-dir", "", "path to project directory (default: directory containing .cem-link.yaml, or cwd)")
	rootCmd.PersistentFlags().String("bundle-arch", "web.browser", "bundle architecture tag applied to linked files")
	rootCmd.PersistentFlags().Bool("include-source-map-instructions", false, "prepend the source-map banner comment to the emitted bundle")
	rootCmd.PersistentFlags().String("cache-dir", "", "prelink cache directory recorded in the config; nothing is written there (default: XDG cache dir)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose logging output")
	viper.BindPFlag("configFile", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("projectDir", rootCmd.PersistentFlags().Lookup("project-dir"))
	viper.BindPFlag("bundleArch", rootCmd.PersistentFlags().Lookup("bundle-arch"))
	viper.BindPFlag("includeSourceMapInstructions", rootCmd.PersistentFlags().Lookup("include-source-map-instructions"))
	viper.BindPFlag("cacheDir", rootCmd.PersistentFlags().Lookup("cache-dir"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}
