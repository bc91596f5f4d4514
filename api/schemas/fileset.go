package schemas

import (
	"fmt"
	"sort"
	"strings"
)

// -- FileSet Schemas --

// FileSpec is one generated file: a relative path, its full content and an
// optional target tag ("api", "web", "infra") used by templating collaborators.
type FileSpec struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Target  string `json:"target,omitempty"`
}

// FileSet is an ordered, immutable collection of generated files. Paths are
// unique within one generation cycle. Every correction produces a new version
// rather than mutating in place, so prior versions are discardable.
type FileSet struct {
	Version int        `json:"version"`
	Files   []FileSpec `json:"files"`
}

// NewFileSet builds version 1 of a FileSet, rejecting duplicate paths.
func NewFileSet(files []FileSpec) (*FileSet, error) {
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if f.Path == "" {
			return nil, fmt.Errorf("fileset: file with empty path")
		}
		if _, dup := seen[f.Path]; dup {
			return nil, fmt.Errorf("fileset: duplicate path %q", f.Path)
		}
		seen[f.Path] = struct{}{}
	}
	return &FileSet{Version: 1, Files: files}, nil
}

// File returns the file at the exact path, if present.
func (fs *FileSet) File(path string) (FileSpec, bool) {
	for _, f := range fs.Files {
		if f.Path == path {
			return f, true
		}
	}
	return FileSpec{}, false
}

// Resolve finds a file by tolerant lookup: exact match first, then a
// path-suffix match (so "routes/companies.ts" resolves to
// "api/src/routes/companies.ts"), then declared singular/plural variants of
// the final path element.
func (fs *FileSet) Resolve(path string) (FileSpec, bool) {
	if f, ok := fs.File(path); ok {
		return f, true
	}
	for _, f := range fs.Files {
		if strings.HasSuffix(f.Path, "/"+path) {
			return f, true
		}
	}
	for _, variant := range pathVariants(path) {
		for _, f := range fs.Files {
			if f.Path == variant || strings.HasSuffix(f.Path, "/"+variant) {
				return f, true
			}
		}
	}
	return FileSpec{}, false
}

// WithFile returns a new FileSet version with the file at path replaced, or
// appended when absent. The receiver is left untouched.
func (fs *FileSet) WithFile(file FileSpec) *FileSet {
	next := &FileSet{Version: fs.Version + 1, Files: make([]FileSpec, 0, len(fs.Files)+1)}
	replaced := false
	for _, f := range fs.Files {
		if f.Path == file.Path {
			next.Files = append(next.Files, file)
			replaced = true
			continue
		}
		next.Files = append(next.Files, f)
	}
	if !replaced {
		next.Files = append(next.Files, file)
	}
	return next
}

// Paths returns the sorted list of file paths.
func (fs *FileSet) Paths() []string {
	paths := make([]string, 0, len(fs.Files))
	for _, f := range fs.Files {
		paths = append(paths, f.Path)
	}
	sort.Strings(paths)
	return paths
}

// TotalSize returns the combined content length in bytes.
func (fs *FileSet) TotalSize() int {
	total := 0
	for _, f := range fs.Files {
		total += len(f.Content)
	}
	return total
}

// pathVariants derives singular/plural spellings of the last path element.
// "routes/company.ts" gains "routes/companies.ts" and vice versa.
func pathVariants(path string) []string {
	dir, base := "", path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		dir, base = path[:i+1], path[i+1:]
	}
	ext := ""
	if i := strings.LastIndex(base, "."); i >= 0 {
		base, ext = base[:i], base[i:]
	}

	var stems []string
	switch {
	case strings.HasSuffix(base, "ies"):
		stems = append(stems, strings.TrimSuffix(base, "ies")+"y")
	case strings.HasSuffix(base, "s"):
		stems = append(stems, strings.TrimSuffix(base, "s"))
	}
	switch {
	case strings.HasSuffix(base, "y"):
		stems = append(stems, strings.TrimSuffix(base, "y")+"ies")
	default:
		if !strings.HasSuffix(base, "s") {
			stems = append(stems, base+"s")
		}
	}

	variants := make([]string, 0, len(stems))
	for _, stem := range stems {
		variants = append(variants, dir+stem+ext)
	}
	return variants
}
