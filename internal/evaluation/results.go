// internal/evaluation/results.go
package evaluation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9_]+`)
	slugDashes  = regexp.MustCompile(`-+`)
)

// AppendResult appends result as one JSON line to <dir>/<model>.jsonl and returns the file path.
func AppendResult(dir, modelName string, result Result) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating results directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.jsonl", slugify(modelName)))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("error opening results file: %w", err)
	}
	defer file.Close()

	if err := json.NewEncoder(file).Encode(result); err != nil {
		return "", fmt.Errorf("error writing results: %w", err)
	}
	return path, nil
}

func slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, ":", "_")
	s = slugInvalid.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-_")
	if s == "" {
		return "results"
	}
	return s
}
