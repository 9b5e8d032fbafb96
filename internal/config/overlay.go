// config/overlay.go
package config

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// KeywordsFile is the optional classifier overlay (keywords.yml) kept next to
// config.yml so keyword tuning does not touch the main config.
type KeywordsFile struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// OverlayKeywords replaces the classifier lists with the non-empty lists from path.
// A missing file is not an error.
func OverlayKeywords(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	var kf KeywordsFile
	if err := yaml.Unmarshal(b, &kf); err != nil {
		return err
	}

	if len(kf.Include) > 0 {
		cfg.Classifier.Include = kf.Include
	}
	if len(kf.Exclude) > 0 {
		cfg.Classifier.Exclude = kf.Exclude
	}
	return nil
}
