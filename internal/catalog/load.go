package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// toolFile is the on-disk shape of a tool definition file.
type toolFile struct {
	Tools []toolEntry `json:"tools" yaml:"tools"`
}

type toolEntry struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	InputSchema any    `json:"inputSchema" yaml:"inputSchema"`
}

// LoadGlobs reads tool definition files matched by the given glob patterns
// and merges them into one catalog. Files merge in sorted path order; a
// later definition of the same tool name replaces the earlier one in place.
// JSON files may carry comments and trailing commas.
func LoadGlobs(patterns []string) (*Catalog, error) {
	paths, err := expandGlobs(patterns)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no tool files matched %v", patterns)
	}

	var merged []Tool
	index := make(map[string]int)
	for _, path := range paths {
		entries, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Name == "" {
				return nil, fmt.Errorf("%s: tool with empty name", path)
			}
			tool := Tool{Name: e.Name, Description: e.Description}
			if e.InputSchema != nil {
				schema, err := json.Marshal(e.InputSchema)
				if err != nil {
					return nil, fmt.Errorf("%s: tool %q: encode inputSchema: %w", path, e.Name, err)
				}
				tool.InputSchema = schema
			}
			if i, ok := index[e.Name]; ok {
				merged[i] = tool
				continue
			}
			index[e.Name] = len(merged)
			merged = append(merged, tool)
		}
	}

	return New(merged)
}

// expandGlobs resolves patterns to a deduplicated, sorted path list.
func expandGlobs(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad tool file pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			paths = append(paths, m)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func loadFile(path string) ([]toolEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tool file: %w", err)
	}

	var file toolFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported tool file extension", path)
	}
	return file.Tools, nil
}
