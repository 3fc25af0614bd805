package main

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	settings "github.com/goliatone/go-settings"
)

//go:embed definitions.yaml
var builtinDefinitions []byte

// loadDefinitions reads path, or the built-in set when path is empty.
func loadDefinitions(path string) ([]settings.Definition, error) {
	raw := builtinDefinitions
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read definitions %s: %w", path, err)
		}
		raw = data
	}
	return settings.LoadDefinitions(bytes.NewReader(raw))
}
