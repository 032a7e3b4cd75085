package idokep

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ExtensionInfo describes the uploader for installation.
type ExtensionInfo struct {
	Name        string         `yaml:"name"`
	Version     string         `yaml:"version"`
	Description string         `yaml:"description"`
	Author      string         `yaml:"author"`
	AuthorEmail string         `yaml:"author_email"`
	Config      map[string]any `yaml:"config"`
}

// Extension is the installer descriptor. Its Config is the stub merged into
// a station configuration; the placeholder credentials keep the uploader
// disabled until they are replaced.
var Extension = ExtensionInfo{
	Name:        "Idokep",
	Version:     Version,
	Description: "IDOKEP data uploader",
	Author:      "Zimmermann Zsolt",
	AuthorEmail: "https://github.com/cina/idokep",
	Config: map[string]any{
		"StdRESTful": map[string]any{
			Protocol: map[string]any{
				"username": "INSERT_USERNAME_HERE",
				"password": "INSERT_PASSWORD_HERE",
			},
		},
	},
}

// DefaultConfig returns the configuration stub as YAML.
func DefaultConfig() ([]byte, error) {
	out, err := yaml.Marshal(Extension.Config)
	if err != nil {
		return nil, fmt.Errorf("marshal default config: %w", err)
	}
	return out, nil
}
