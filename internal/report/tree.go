package report

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	maxTypedFiles    = 50
	maxSearchResults = 20
	searchDepth      = 4
)

// Folder is one matched project directory.
type Folder struct {
	Path  string
	Name  string
	Files int
}

// Tree searches the synced Dropbox project layout: a year directory
// per level, project folders underneath.
type Tree struct {
	ProjectDir string
	EtcDir     string
}

// FindProjectFolders returns project folders whose name contains the
// query, with a recursive file count each. Unreadable directories are
// skipped.
func (t *Tree) FindProjectFolders(query string) []Folder {
	if t.ProjectDir == "" {
		return nil
	}
	q := strings.ToLower(query)
	var results []Folder
	years, err := os.ReadDir(t.ProjectDir)
	if err != nil {
		return nil
	}
	sort.Slice(years, func(i, j int) bool { return years[i].Name() < years[j].Name() })
	for _, year := range years {
		if !year.IsDir() {
			continue
		}
		projects, err := os.ReadDir(filepath.Join(t.ProjectDir, year.Name()))
		if err != nil {
			continue
		}
		sort.Slice(projects, func(i, j int) bool { return projects[i].Name() < projects[j].Name() })
		for _, proj := range projects {
			if !proj.IsDir() || !strings.Contains(strings.ToLower(proj.Name()), q) {
				continue
			}
			path := filepath.Join(t.ProjectDir, year.Name(), proj.Name())
			results = append(results, Folder{
				Path:  path,
				Name:  proj.Name(),
				Files: countFiles(path),
			})
		}
	}
	return results
}

func countFiles(root string) int {
	count := 0
	filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	return count
}

var fileTypeExts = map[string][]string{
	"cad":   {".zsdx", ".dxf", ".dwg", ".step", ".stp", ".iges", ".3dm", ".sldprt", ".sldasm"},
	"doc":   {".docx", ".doc", ".txt", ".rtf"},
	"image": {".jpg", ".jpeg", ".png", ".bmp", ".heic", ".tif", ".tiff"},
	"pdf":   {".pdf"},
	"excel": {".xlsx", ".xls", ".csv", ".numbers"},
}

// fileTypeOrder keeps the breakdown output stable.
var fileTypeOrder = []string{"cad", "doc", "image", "pdf", "excel", "other"}

// FileTypes categorizes up to maxTypedFiles files in a folder by
// extension.
func (t *Tree) FileTypes(folder string) map[string][]string {
	files := map[string][]string{}
	var names []string
	filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			names = append(names, path)
		}
		return nil
	})
	sort.Strings(names)
	if len(names) > maxTypedFiles {
		names = names[:maxTypedFiles]
	}
	for _, path := range names {
		ext := strings.ToLower(filepath.Ext(path))
		cat := "other"
		for c, exts := range fileTypeExts {
			for _, e := range exts {
				if ext == e {
					cat = c
					break
				}
			}
			if cat != "other" {
				break
			}
		}
		files[cat] = append(files[cat], filepath.Base(path))
	}
	return files
}

// SearchKeyword finds files whose name contains the keyword under the
// project and etc trees, depth-limited, case-insensitive.
func (t *Tree) SearchKeyword(keyword string) []string {
	q := strings.ToLower(keyword)
	var results []string
	for _, base := range []string{t.ProjectDir, t.EtcDir} {
		if base == "" || len(results) >= maxSearchResults {
			continue
		}
		filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			rel, rerr := filepath.Rel(base, path)
			if rerr == nil && strings.Count(rel, string(filepath.Separator)) >= searchDepth {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if !d.IsDir() && strings.Contains(strings.ToLower(d.Name()), q) {
				results = append(results, path)
				if len(results) >= maxSearchResults {
					return fs.SkipAll
				}
			}
			return nil
		})
	}
	return results
}
