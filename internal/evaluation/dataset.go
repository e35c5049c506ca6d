// internal/evaluation/dataset.go
package evaluation

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"go.yaml.in/yaml/v3"
)

// itemSchema describes one dataset row. Extra columns (category, flags, ...) are allowed. An empty
// response is accepted and scores 0 on the length and keyword heuristics.
const itemSchema = `{
  "type": "object",
  "required": ["instruction", "response", "intent"],
  "properties": {
    "instruction": {"type": "string", "minLength": 1},
    "response":    {"type": "string"},
    "intent":      {"type": "string", "minLength": 1}
  }
}`

var itemSchemaLoader = gojsonschema.NewStringLoader(itemSchema)

// LoadDataset reads evaluation items from a .json (array), .jsonl or .yaml file and returns at most
// n of them in file order. n <= 0 returns every item.
func LoadDataset(path string, n int) ([]Item, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading dataset: %w", err)
	}

	var docs []map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(raw, &docs); err != nil {
			return nil, fmt.Errorf("error parsing dataset %s: %w", path, err)
		}
	case ".jsonl", ".ndjson":
		docs, err = decodeJSONLines(raw)
		if err != nil {
			return nil, fmt.Errorf("error parsing dataset %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &docs); err != nil {
			return nil, fmt.Errorf("error parsing dataset %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported dataset format %q (expected .json, .jsonl or .yaml)", filepath.Ext(path))
	}

	if n > 0 && len(docs) > n {
		docs = docs[:n]
	}
	items, err := itemsFromDocs(docs)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("dataset %s contains no items", path)
	}
	return items, nil
}

func decodeJSONLines(raw []byte) ([]map[string]any, error) {
	var docs []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		docs = append(docs, doc)
	}
	return docs, scanner.Err()
}

func itemsFromDocs(docs []map[string]any) ([]Item, error) {
	items := make([]Item, 0, len(docs))
	for i, doc := range docs {
		if err := validateItem(doc); err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		items = append(items, Item{
			Instruction: doc["instruction"].(string),
			Response:    doc["response"].(string),
			Intent:      doc["intent"].(string),
		})
	}
	return items, nil
}

func validateItem(doc map[string]any) error {
	result, err := gojsonschema.Validate(itemSchemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return fmt.Errorf("invalid item: %s", strings.Join(errs, ", "))
}
