package ingest

import (
	"path/filepath"
	"strings"
)

// contentTypes maps lecture file extensions to their MIME types.
var contentTypes = map[string]string{
	".pdf":      "application/pdf",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".text":     "text/plain",
}

// ContentTypeForFile infers the MIME type of a lecture file from its
// extension, defaulting to text/plain for anything unrecognized.
func ContentTypeForFile(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "text/plain"
}

// SourceName returns the label stored with each chunk and echoed back in
// answer attributions: the file's base name without its directory.
func SourceName(path string) string {
	return filepath.Base(path)
}
