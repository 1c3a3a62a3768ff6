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
package platform_test

import (
	"testing"

	"bennypowers.dev/cem/internal/platform"
)

// TestMockTimeProvider and TestMockFileWatcher live in
// platform_race_test.go, run inside testing/synctest bubbles for
// deterministic scheduling; this file covers the rest of the mocks.

func TestTempDirFileSystem(t *testing.T) {
	fs, err := platform.NewTempDirFileSystem()
	if err != nil {
		t.Fatalf("Failed to create temp dir filesystem: %v", err)
	}
	defer fs.Cleanup()

	// Test file operations
	testData := []byte("hello world")
	err = fs.WriteFile("test.txt", testData, 0644)
	if err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	// Test file exists
	if !fs.Exists("test.txt") {
		t.Error("File should exist after writing")
	}

	// Test reading file
	data, err := fs.ReadFile("test.txt")
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}

	if string(data) != string(testData) {
		t.Errorf("Expected file content %q, got %q", testData, data)
	}

	// Test directory creation
	err = fs.MkdirAll("subdir/nested", 0755)
	if err != nil {
		t.Fatalf("Failed to create directories: %v", err)
	}

	// Test temp dir isolation
	tempDir := fs.TempDir()
	if tempDir == "" {
		t.Error("TempDir should return non-empty path")
	}

	// Test real path resolution
	realPath := fs.RealPath("test.txt")
	if realPath == "test.txt" {
		t.Error("RealPath should return absolute path within temp directory")
	}
}

func TestInterfaceCompliance(t *testing.T) {
	// Ensure our implementations satisfy the interfaces
	var _ platform.TimeProvider = (*platform.RealTimeProvider)(nil)
	var _ platform.TimeProvider = (*platform.MockTimeProvider)(nil)
	var _ platform.FileWatcher = (*platform.FSNotifyFileWatcher)(nil)
	var _ platform.FileWatcher = (*platform.MockFileWatcher)(nil)
	var _ platform.FileSystem = (*platform.OSFileSystem)(nil)
	var _ platform.FileSystem = (*platform.TempDirFileSystem)(nil)
	var _ platform.LinkWatcher = (*platform.RelinkWatcher)(nil)
}
