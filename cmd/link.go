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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tidwall/gjson"

	"bennypowers.dev/cem/cmd/config"
	"bennypowers.dev/cem/internal/buildmessage"
	"bennypowers.dev/cem/internal/inputfile"
	"bennypowers.dev/cem/internal/linker"
	"bennypowers.dev/cem/internal/logging"
	"bennypowers.dev/cem/internal/platform"
	"bennypowers.dev/cem/internal/prelink"
)

// linkCmd implements `cem-link link <path>`: path names
// either a JSON InputFile batch, or a directory of already-compiled files
// to glob and link as a flat bare bundle.
var linkCmd = &cobra.Command{
	Use:   "link <path>",
	Short: "Link compiled package files into a bundle",
	Long: `Reads an InputFile batch (a JSON file matching the schema in
internal/inputfile/schemas/batch.json) or a directory of already-compiled
files, links them into a single bundle plus source map, and writes the
result to --out-dir.`,
	Args: cobra.ExactArgs(1),
	RunE: runLink,
}

func init() {
	rootCmd.AddCommand(linkCmd)
	linkCmd.Flags().String("out-dir", "dist", "directory to write linked output files to")
	linkCmd.Flags().Bool("watch", false, "re-link whenever an input file changes")
	linkCmd.Flags().Bool("transform", false, "lower bare .ts/.tsx/.jsx inputs with esbuild before linking")
	linkCmd.Flags().String("min-linker-version", "", "fail unless this binary's version is at least this semver")
	linkCmd.Flags().Bool("disable-cache", false, "bypass the prelink caches for this run")
	viper.BindPFlag("link.outDir", linkCmd.Flags().Lookup("out-dir"))
	viper.BindPFlag("link.watch", linkCmd.Flags().Lookup("watch"))
	viper.BindPFlag("link.transform", linkCmd.Flags().Lookup("transform"))
	viper.BindPFlag("link.minLinkerVersion", linkCmd.Flags().Lookup("min-linker-version"))
	viper.BindPFlag("link.disableCache", linkCmd.Flags().Lookup("disable-cache"))
}

// hostFS is the filesystem link reads its JSON batch input from and
// writes its output files to, routed through platform.FileSystem so
// tests can substitute platform.NewMapFileSystem or
// platform.NewTempDirFileSystem for the real OS-backed one. Directory
// globbing and .gitignore handling (buildDirectoryInput, loadGitignore)
// stay on os/os.DirFS directly: doublestar and go-gitignore both expect
// a real rooted filesystem, not this package's path-is-the-whole-key
// FileSystem abstraction.
var hostFS platform.FileSystem = platform.NewOSFileSystem()

func runLink(cmd *cobra.Command, args []string) error {
	if err := buildmessage.CheckLegacyLinkerFlag(); err != nil {
		return err
	}
	if err := buildmessage.CheckMinLinkerVersion(viper.GetString("link.minLinkerVersion")); err != nil {
		return err
	}

	cfg := loadConfig()
	target := args[0]
	outDir := viper.GetString("link.outDir")
	transform := viper.GetBool("link.transform")
	disableCache := viper.GetBool("link.disableCache")

	runOnce := func() error {
		in, err := loadLinkInput(target, cfg, transform, disableCache)
		if err != nil {
			return err
		}
		return linkAndWrite(*in, outDir)
	}

	if err := runOnce(); err != nil {
		logging.Error("%v", err)
		if !viper.GetBool("link.watch") {
			return err
		}
	}

	if !viper.GetBool("link.watch") {
		return nil
	}
	return watchAndRelink(target, runOnce)
}

// loadLinkInput builds a linker.FullLinkInput from target, which is either
// a directory of compiled files or, for any other path, a JSON batch file.
func loadLinkInput(target string, cfg *config.LinkConfig, transform, disableCache bool) (*linker.FullLinkInput, error) {
	info, err := hostFS.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("cmd: stat %s: %w", target, err)
	}

	var in linker.FullLinkInput
	if !info.IsDir() {
		data, err := hostFS.ReadFile(target)
		if err != nil {
			return nil, fmt.Errorf("cmd: reading %s: %w", target, err)
		}
		in, err = inputfile.ParseBatch(data)
		if err != nil {
			return nil, err
		}
	} else {
		in, err = buildDirectoryInput(target, cfg, transform)
		if err != nil {
			return nil, err
		}
	}

	if in.BundleArch == "" {
		in.BundleArch = cfg.BundleArch
	}
	in.IncludeSourceMapInstructions = in.IncludeSourceMapInstructions || cfg.IncludeSourceMapInstructions
	in.DisableCache = disableCache
	return &in, nil
}

// buildDirectoryInput globs a directory of already-compiled files
// (respecting .gitignore) into a bare, runtime-less bundle — a
// convenience path for linking a handful of plain files without
// hand-writing a JSON batch. Package-name defaults are read from a
// sibling package.json, if any, via gjson.
func buildDirectoryInput(dir string, cfg *config.LinkConfig, transform bool) (linker.FullLinkInput, error) {
	ignore := loadGitignore(dir)

	pattern := "**/*.js"
	if transform {
		pattern = "**/*.{js,ts,jsx,tsx}"
	}
	matches, err := doublestar.Glob(os.DirFS(dir), pattern)
	if err != nil {
		return linker.FullLinkInput{}, fmt.Errorf("cmd: globbing %s: %w", dir, err)
	}

	in := linker.FullLinkInput{IsApp: true, BundleArch: cfg.BundleArch}
	if name := readPackageName(dir); name != "" {
		in.Name = name
		in.CombinedServePath = "/" + name + ".js"
	} else {
		in.CombinedServePath = "/bundle.js"
	}

	for _, rel := range matches {
		if ignore != nil && ignore.MatchesPath(rel) {
			continue
		}
		full := filepath.Join(dir, rel)
		source, err := os.ReadFile(full)
		if err != nil {
			return linker.FullLinkInput{}, fmt.Errorf("cmd: reading %s: %w", full, err)
		}
		servePath := "/" + filepath.ToSlash(rel)
		code := string(source)

		if transform && isBareTranspileTarget(rel) {
			out, err := prelink.TransformBareFile(code, rel)
			if err != nil {
				return linker.FullLinkInput{}, err
			}
			code = out.Code
		}

		in.InputFiles = append(in.InputFiles, &linker.InputFile{
			Source:     []byte(code),
			SourcePath: rel,
			ServePath:  servePath,
			Bare:       true,
		})
	}

	return in, nil
}

func isBareTranspileTarget(rel string) bool {
	switch filepath.Ext(rel) {
	case ".ts", ".tsx", ".jsx":
		return true
	default:
		return false
	}
}

func loadGitignore(dir string) *gitignore.GitIgnore {
	path := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	ignore, err := gitignore.CompileIgnoreFile(path)
	if err != nil {
		logging.Warning("cmd: parsing %s: %v", path, err)
		return nil
	}
	return ignore
}

// readPackageName extracts package.json's "name" field with gjson, if a
// package.json exists at dir's root.
func readPackageName(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return ""
	}
	return gjson.GetBytes(data, "name").String()
}

// linkAndWrite captures a build-message job around linker.FullLink,
// prints any diagnostics, and writes successful output to outDir.
func linkAndWrite(in linker.FullLinkInput, outDir string) error {
	title := in.Name
	if title == "" {
		title = "bundle"
	}

	var outputs []linker.OutputFile
	var linkErr error
	ms := buildmessage.Capture(buildmessage.CaptureOptions{Title: fmt.Sprintf("linking %q", title)}, func() {
		outputs, linkErr = linker.FullLink(in)
	})

	if ms.HasMessages() {
		fmt.Fprint(os.Stderr, ms.FormatMessages())
	}
	if linkErr != nil {
		return fmt.Errorf("cmd: linking %s: %w", title, linkErr)
	}
	if outputs == nil {
		return errors.New("cmd: linking produced no output (see diagnostics above)")
	}

	for _, out := range outputs {
		if err := writeOutputFile(outDir, out); err != nil {
			return err
		}
	}
	logging.Success("Linked %d file(s) into %s", len(outputs), outDir)
	return nil
}

func writeOutputFile(outDir string, out linker.OutputFile) error {
	dest := filepath.Join(outDir, filepath.FromSlash(strings.TrimPrefix(out.ServePath, "/")))
	if err := hostFS.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("cmd: creating %s: %w", filepath.Dir(dest), err)
	}
	if err := hostFS.WriteFile(dest, []byte(out.Source), 0o644); err != nil {
		return fmt.Errorf("cmd: writing %s: %w", dest, err)
	}
	if out.SourceMap != nil {
		data, err := out.SourceMap.ToJSON()
		if err != nil {
			return fmt.Errorf("cmd: serialising source map for %s: %w", dest, err)
		}
		if err := hostFS.WriteFile(dest+".map", data, 0o644); err != nil {
			return fmt.Errorf("cmd: writing %s.map: %w", dest, err)
		}
	}
	return nil
}

// relinkDebounce is how long the watch loop waits for a burst of saves
// to go quiet before re-running the link.
const relinkDebounce = 150 * time.Millisecond

// watchAndRelink re-runs fn whenever a file under target changes. This is
// ambient CLI plumbing around the stateless linker, not a linker feature;
// it delegates the watch-and-debounce loop to platform.RelinkWatcher so
// tests can substitute platform.NewMockFileWatcher and a controllable
// platform.TimeProvider for the real fsnotify-and-wall-clock-backed ones.
func watchAndRelink(target string, fn func() error) error {
	roots, err := watchRoots(target)
	if err != nil {
		return err
	}

	fw, err := platform.NewFSNotifyFileWatcher()
	if err != nil {
		return fmt.Errorf("cmd: starting watcher: %w", err)
	}

	return runWatchLoop(fw, platform.NewRealTimeProvider(), roots, fn)
}

// runWatchLoop drives a platform.RelinkWatcher to completion, separated
// from watchAndRelink so it can be exercised directly against a
// platform.MockFileWatcher and platform.MockTimeProvider in tests: closing
// the mock watcher ends the loop deterministically instead of requiring a
// real debounce delay to elapse.
func runWatchLoop(fw platform.FileWatcher, tp platform.TimeProvider, roots []string, fn func() error) error {
	watcher := platform.NewRelinkWatcher(fw, tp, roots, relinkDebounce, fn, func(err error) {
		logging.Error("%v", err)
	})
	if err := watcher.Start(); err != nil {
		return err
	}

	logging.Info("Watching for changes ...")
	<-watcher.Done()
	return nil
}

// watchRoots returns the directories fsnotify should watch: target itself
// if it's a directory, or its containing directory for a JSON batch file.
func watchRoots(target string) ([]string, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{filepath.Dir(target)}, nil
	}

	var dirs []string
	err = filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs, err
}
