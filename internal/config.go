package internal

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads and parses the YAML config file at path.
// If the file does not exist, LoadConfig returns the defaults so the scanner
// works without any config file.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		cfg.Prepare()
		return &cfg, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		cfg.Prepare()
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.Prepare()
	return &cfg, nil
}
