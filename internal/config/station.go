package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Station is the content of the station configuration file:
//
//	Station:
//	  station_type: Vantage
//	StdRESTful:
//	  log_success: true
//	  IDOKEP:
//	    username: alice
//	    password: secret
type Station struct {
	Hardware string
	// RESTful holds the uploader settings, one nested mapping per uploader.
	// Scalars at this level apply to every uploader.
	RESTful map[string]any
}

type stationFile struct {
	Station struct {
		StationType string `yaml:"station_type"`
	} `yaml:"Station"`
	StdRESTful map[string]any `yaml:"StdRESTful"`
}

// LoadStation reads the station configuration at path. A missing file
// yields an empty configuration; uploaders then stay disabled unless
// their settings come from the environment.
func LoadStation(path string) (Station, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Station{RESTful: map[string]any{}}, nil
	}
	if err != nil {
		return Station{}, fmt.Errorf("read station config: %w", err)
	}
	return ParseStation(data)
}

func ParseStation(data []byte) (Station, error) {
	var f stationFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Station{}, fmt.Errorf("parse station config: %w", err)
	}
	if f.StdRESTful == nil {
		f.StdRESTful = map[string]any{}
	}
	return Station{Hardware: f.Station.StationType, RESTful: f.StdRESTful}, nil
}

// ApplyEnvOverrides sets uploader options from <SERVICE>_<OPTION>
// environment variables, e.g. IDOKEP_PASSWORD, creating the service
// section when needed.
func (s *Station) ApplyEnvOverrides(service string, options ...string) {
	for _, opt := range options {
		v := getenv(envKey(service, opt), "")
		if v == "" {
			continue
		}
		s.SetOption(service, opt, v)
	}
}

// SetOption sets one option of a service section.
func (s *Station) SetOption(service, option string, value any) {
	if s.RESTful == nil {
		s.RESTful = map[string]any{}
	}
	section, ok := s.RESTful[service].(map[string]any)
	if !ok {
		section = map[string]any{}
		s.RESTful[service] = section
	}
	section[option] = value
}

func envKey(service, option string) string {
	return strings.ToUpper(service + "_" + option)
}
