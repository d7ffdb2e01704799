// Package toolutils holds small helpers shared by the LDM-7 cobra
// commands: YAML config loading and status-line printing.
package toolutils

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// ReadYaml reads the YAML file at path into dst (a pointer to a config
// struct), wrapping decode errors with the file path for context.
func ReadYaml(dst any, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unable to parse config file %s: %w", path, err)
	}
	return nil
}
