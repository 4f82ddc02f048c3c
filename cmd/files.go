// File: cmd/files.go
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// readDocument loads a JSON or YAML file and returns it as JSON, so that
// both formats go through the same request schemas and decoders.
func readDocument(path string) ([]byte, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !isYAML(path) {
		return raw, nil
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%s is not representable as JSON: %w", path, err)
	}
	return out, nil
}

// writeDocument encodes v as JSON, or as YAML when path ends in .yaml/.yml.
// An empty path writes JSON to stdout.
func writeDocument(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if path != "" && isYAML(path) {
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		if data, err = yaml.Marshal(doc); err != nil {
			return err
		}
	}
	if path == "" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return err
	}
	return os.WriteFile(expanded, data, 0o644)
}
