// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package completion

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

const (
	maxWorkflowFiles = 100
	maxSearchDepth   = 2

	// sniffSize bounds how much of each candidate file is read.
	sniffSize = 64 * 1024
)

// workflowFile represents a discovered workflow file with metadata.
type workflowFile struct {
	path    string
	modTime int64
}

// CompleteWorkflowFiles provides dynamic completion for workflow file paths.
// Discovers .json files in the current directory and subdirectories (max 2
// levels deep) that mention "nodes", which matches both exported workflows
// and unrendered templates. Results are limited to 100 files, newest first.
func CompleteWorkflowFiles(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		files, err := discoverWorkflowFiles(".", maxSearchDepth)
		if err != nil || len(files) == 0 {
			return []string{"json"}, cobra.ShellCompDirectiveFilterFileExt
		}

		sort.Slice(files, func(i, j int) bool {
			return files[i].modTime > files[j].modTime
		})
		if len(files) > maxWorkflowFiles {
			files = files[:maxWorkflowFiles]
		}

		paths := make([]string, 0, len(files))
		for _, f := range files {
			if strings.HasPrefix(f.path, toComplete) {
				paths = append(paths, f.path)
			}
		}
		return paths, cobra.ShellCompDirectiveDefault
	})
}

// CompleteDirectories completes directory arguments such as backup targets.
func CompleteDirectories(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return nil, cobra.ShellCompDirectiveFilterDirs
}

// discoverWorkflowFiles walks root up to maxDepth levels, skipping hidden
// directories and symlinks.
func discoverWorkflowFiles(root string, maxDepth int) ([]workflowFile, error) {
	var files []workflowFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		relPath, _ := filepath.Rel(root, path)
		if strings.Count(relPath, string(filepath.Separator)) > maxDepth {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".json") || !isSafeFile(path) || !isWorkflowFile(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, workflowFile{path: path, modTime: info.ModTime().Unix()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// isSafeFile rejects symlinks in the final path component.
func isSafeFile(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeSymlink == 0
}

// isWorkflowFile reports whether the head of the file mentions a "nodes"
// key. Templates are not valid JSON before rendering, so the file is not
// parsed.
func isWorkflowFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head, err := io.ReadAll(io.LimitReader(f, sniffSize))
	if err != nil {
		return false
	}
	return bytes.Contains(head, []byte(`"nodes"`))
}
