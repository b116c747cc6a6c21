package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/autoscript/runtime/internal/autoscript/model"
)

// loadScript reads a YAML script document from path and normalizes it.
func loadScript(path string) (model.Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Script{}, fmt.Errorf("read script %s: %w", path, err)
	}

	var raw model.RawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return model.Script{}, fmt.Errorf("parse script %s: %w", path, err)
	}

	return model.Normalize(raw), nil
}
