package hub

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Class describes how a channel name is handled: which kind it maps to and
// whether the liveness monitor probes it.
type Class struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Probed bool   `yaml:"probed"`
}

type classFile struct {
	Channels []Class `yaml:"channels"`
}

// DefaultClasses returns the built-in channel classification.
func DefaultClasses() map[string]Class {
	return map[string]Class{
		"content-script": {Name: "content-script", Kind: "content-script"},
		"popout":         {Name: "popout", Kind: "popout", Probed: true},
		"tracking":       {Name: "tracking", Kind: "tracking", Probed: true},
		"menu-port":      {Name: "menu-port", Kind: "menu"},
	}
}

// LoadClasses reads and validates a channel classification YAML file.
func LoadClasses(path string) (map[string]Class, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("channel config: %w", err)
	}
	var cf classFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("channel config: %w", err)
	}
	classes := make(map[string]Class, len(cf.Channels))
	for i, c := range cf.Channels {
		if c.Name == "" {
			return nil, fmt.Errorf("channel config: channel[%d] missing name", i)
		}
		if _, err := parseKind(c.Kind); err != nil {
			return nil, fmt.Errorf("channel config: channel[%d] (%s): %w", i, c.Name, err)
		}
		classes[c.Name] = c
	}
	return classes, nil
}

func parseKind(s string) (Kind, error) {
	switch s {
	case "content-script":
		return KindContentScript, nil
	case "popout":
		return KindPopout, nil
	case "tracking":
		return KindTracking, nil
	case "menu":
		return KindMenu, nil
	}
	return 0, fmt.Errorf("unknown channel kind %q", s)
}
