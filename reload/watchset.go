package reload

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// alwaysSkipDirs are directory names never descended into when walking roots.
// Watching these produces nothing but noise for a development server.
var alwaysSkipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	"node_modules": true,
}

// WatchSet describes the files observed by a reloader.  The zero value
// watches the working directory tree.
type WatchSet struct {
	// Roots are directories walked recursively for files to observe.
	// If empty, the current working directory is used.
	Roots []string

	// ExtraFiles are individual files observed in addition to the roots,
	// e.g. configuration files outside the working tree.
	ExtraFiles []string

	// ExcludePatterns are filepath.Match patterns applied to the base name
	// of each candidate file.  Matching files are not observed.
	ExcludePatterns []string
}

// roots returns the directories to walk, defaulting to the working directory.
func (ws WatchSet) roots() []string {
	if len(ws.Roots) == 0 {
		return []string{"."}
	}

	return ws.Roots
}

// Excluded tests whether the given path is excluded from observation.
// Patterns are matched against the path's base name.
func (ws WatchSet) Excluded(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range ws.ExcludePatterns {
		// a malformed pattern simply never matches
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}

	return false
}

// Contains tests whether a changed path is part of this watch set.  Extra
// files match exactly, while any non-excluded file under a root matches.
func (ws WatchSet) Contains(path string) bool {
	for _, extra := range ws.ExtraFiles {
		if sameFile(extra, path) {
			return true
		}
	}

	if ws.Excluded(path) {
		return false
	}

	for _, root := range ws.roots() {
		if underDir(root, path) {
			return true
		}
	}

	return false
}

// Files enumerates every file currently observed: the recursive contents of
// each root plus the extra files.  Roots or extra files that do not exist are
// silently skipped, since files routinely come and go between enumerations.
func (ws WatchSet) Files() ([]string, error) {
	var files []string
	seen := make(map[string]bool)

	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, root := range ws.roots() {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			switch {
			case err != nil:
				// unreadable entries are skipped, not fatal
				return nil

			case d.IsDir() && alwaysSkipDirs[d.Name()]:
				return filepath.SkipDir

			case !d.IsDir() && !ws.Excluded(path):
				add(path)
			}

			return nil
		})

		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	for _, extra := range ws.ExtraFiles {
		if _, err := os.Stat(extra); err == nil {
			add(extra)
		}
	}

	return files, nil
}

// Dirs enumerates the directories a filesystem-event backend should register:
// every directory under the roots plus the parent directory of each extra
// file.  Watching parents rather than files themselves survives the
// rename-and-replace dance most editors perform on save.
func (ws WatchSet) Dirs() ([]string, error) {
	var dirs []string
	seen := make(map[string]bool)

	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			dirs = append(dirs, path)
		}
	}

	for _, root := range ws.roots() {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			switch {
			case err != nil:
				return nil

			case d.IsDir() && alwaysSkipDirs[d.Name()]:
				return filepath.SkipDir

			case d.IsDir():
				add(path)
			}

			return nil
		})

		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	for _, extra := range ws.ExtraFiles {
		add(filepath.Dir(extra))
	}

	return dirs, nil
}

// sameFile compares two paths after cleaning, without touching the filesystem.
func sameFile(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

// underDir tests whether path lies within dir (or is dir itself).
func underDir(dir, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}

	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
