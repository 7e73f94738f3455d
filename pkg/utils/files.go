package utils

import (
	"path/filepath"
	"strings"
)

func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	// Convert to absolute path (resolves ../../ and cleans the path)
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}

	parentDir = filepath.Dir(fullPath)

	return fullPath, parentDir, nil
}

// OutputPath swaps the extension of inPath for ext, or appends ext when
// inPath has none.
func OutputPath(inPath, ext string) string {
	old := filepath.Ext(inPath)
	if old == "" {
		return inPath + ext
	}
	return strings.TrimSuffix(inPath, old) + ext
}

// ModuleName is the name a source file is known by in diagnostics: its path
// relative to the working directory when that is shorter.
func ModuleName(path string) string {
	full, _, err := GetPathInfo(path)
	if err != nil {
		return path
	}
	wd, err := filepath.Abs(".")
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(wd, full)
	if err != nil || len(rel) >= len(path) || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
