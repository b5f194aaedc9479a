package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
)

// platformHints maps bundle name suffixes to declared platforms,
// e.g. "team-sync.mistral.json" or "notes.claude/".
var platformHints = map[string]domain.Platform{
	"chatgpt": domain.PlatformChatGPT,
	"claude":  domain.PlatformClaude,
	"gemini":  domain.PlatformGemini,
	"mistral": domain.PlatformMistral,
	"lechat":  domain.PlatformMistral,
}

// LoadRequest reads an inbox entry into an import request.
// A file is the export itself. A directory is a bundle: the first text
// document by name is the export, every other file is an attachment.
func LoadRequest(path string) (domain.ImportRequest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.ImportRequest{}, err
	}

	req := domain.ImportRequest{DeclaredPlatform: platformHint(filepath.Base(path))}
	if !info.IsDir() {
		req.RawContent, err = os.ReadFile(path)
		if err != nil {
			return domain.ImportRequest{}, err
		}
		return req, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return domain.ImportRequest{}, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(path, name))
		if err != nil {
			return domain.ImportRequest{}, err
		}
		file := domain.RawFile{Name: name, MimeType: mimetype.Detect(data).String(), Data: data}
		if req.RawContent == nil && isExport(file) {
			req.RawContent = data
			continue
		}
		req.Attachments = append(req.Attachments, file)
	}

	if req.RawContent == nil {
		return domain.ImportRequest{}, fmt.Errorf("%w: bundle %s has no chat export", domain.ErrInvalidInput, filepath.Base(path))
	}
	return req, nil
}

// isExport accepts JSON, CSV and plain text documents.
func isExport(f domain.RawFile) bool {
	if domain.ClassifyMedia(f) != domain.MediaTypeDocument {
		return false
	}
	switch strings.ToLower(filepath.Ext(f.Name)) {
	case ".json", ".csv", ".txt", ".md":
		return true
	}
	return strings.HasPrefix(f.MimeType, "text/") || strings.HasPrefix(f.MimeType, "application/json")
}

// platformHint reads a platform from any dotted name part after the first.
func platformHint(name string) domain.Platform {
	parts := strings.Split(strings.ToLower(name), ".")
	for j := len(parts) - 1; j >= 1; j-- {
		if p, ok := platformHints[parts[j]]; ok {
			return p
		}
	}
	return ""
}
