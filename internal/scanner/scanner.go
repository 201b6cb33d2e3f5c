// internal/scanner/scanner.go
package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"autopatch/internal/events"
)

// ErrNotADirectory is returned when the scan root is missing or not a directory
var ErrNotADirectory = errors.New("not a directory")

// ignoredDirs are directory names pruned from scans along with all their contents
var ignoredDirs = map[string]struct{}{
	"node_modules": {},
	"venv":         {},
	"__pycache__":  {},
	".git":         {},
	"dist":         {},
	"build":        {},
	"env":          {},
	".venv":        {},
	".next":        {},
	".vite":        {},
}

// IsIgnored reports whether a directory name is excluded from scanning
func IsIgnored(name string) bool {
	_, ok := ignoredDirs[name]
	return ok
}

// Tree maps a directory path relative to the scan root ("" for the root itself)
// to the file names directly inside it. Subdirectories appear as their own keys.
type Tree map[string][]string

// Scan walks root and builds a Tree, pruning ignored directories at any depth.
// Progress events are emitted proportional to the directory count.
func Scan(root string, emitter *events.Emitter) (Tree, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, root)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, root)
	}

	emitter.Log(fmt.Sprintf("Starting directory tree analysis for: %s", root), events.LevelInfo)

	// First pass counts directories so progress has a stable total
	total := 0
	err = walkDirs(root, func(rel string, entries []fs.DirEntry) error {
		total++
		return nil
	})
	if err != nil {
		return nil, err
	}

	emitter.Progress("Analyzing directory structure", 0, total,
		fmt.Sprintf("Found %d directories to process", total))

	tree := Tree{}
	processed := 0
	totalFiles := 0
	err = walkDirs(root, func(rel string, entries []fs.DirEntry) error {
		var files []string
		for _, entry := range entries {
			if !entry.IsDir() {
				files = append(files, entry.Name())
			}
		}
		sort.Strings(files)
		tree[rel] = files
		totalFiles += len(files)

		processed++
		if processed%5 == 0 || processed == total {
			emitter.Progress("Analyzing directory structure", processed, total,
				fmt.Sprintf("Processing: %s", rel))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	emitter.Log(fmt.Sprintf("Directory analysis complete: %d directories, %d files",
		len(tree), totalFiles), events.LevelSuccess)

	return tree, nil
}

// walkDirs visits every non-ignored directory under root, passing its
// root-relative path and directory entries to visit.
func walkDirs(root string, visit func(rel string, entries []fs.DirEntry) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, the scan keeps going
			log.Printf("[Scanner] skipping %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			rel = ""
		} else if IsIgnored(d.Name()) {
			// Prune the whole subtree: do not descend, do not record
			return filepath.SkipDir
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			log.Printf("[Scanner] skipping unreadable directory %s: %v", path, err)
			return filepath.SkipDir
		}
		return visit(rel, entries)
	})
}

// maxRenderLines caps the rendered tree so it never overwhelms model context
const maxRenderLines = 100

// RenderTree produces an indented textual view of the project tree for the
// model prompt. Hidden files are skipped and output is truncated past the cap.
func RenderTree(root string) string {
	var lines []string

	err := walkDirs(root, func(rel string, entries []fs.DirEntry) error {
		depth := 0
		base := filepath.Base(root)
		if rel != "" {
			depth = strings.Count(rel, string(os.PathSeparator)) + 1
			base = filepath.Base(rel)
		}

		indent := strings.Repeat("  ", depth)
		lines = append(lines, indent+base+"/")

		subindent := strings.Repeat("  ", depth+1)
		for _, entry := range entries {
			if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			lines = append(lines, subindent+entry.Name())
		}

		if len(lines) > maxRenderLines {
			lines = append(lines, "... (truncated)")
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return fmt.Sprintf("Error reading directory: %v", err)
	}

	return strings.Join(lines, "\n")
}
