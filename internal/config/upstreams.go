package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// upstreamFile is the on-disk shape of the optional upstream override file.
type upstreamFile struct {
	Upstreams UpstreamURLs `yaml:"upstreams"`
}

// LoadUpstreamURLs reads an upstream URL table from a YAML file. Only the
// keys present in the file override the environment-provided values.
func LoadUpstreamURLs(path string) (UpstreamURLs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return UpstreamURLs{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var file upstreamFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return UpstreamURLs{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	return file.Upstreams, nil
}
