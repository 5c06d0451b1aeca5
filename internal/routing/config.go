// Package routing loads the output routing configuration and resolves alert
// output tokens against it.
package routing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"

	"alertprocessor/internal/types"
)

// DefaultConfigPath is where the routing configuration is read from when
// OUTPUTS_CONFIG_PATH is not set.
const DefaultConfigPath = "conf/outputs.json"

// Config maps each output service to the descriptors configured for it.
//
// A service may be declared either as a list of descriptors or as an object
// mapping each descriptor to the resource it names (bucket, function, ...).
// For the list form every resource is the empty string.
type Config map[string]map[string]string

// Contains reports whether d names a configured service and descriptor.
func (c Config) Contains(d Destination) bool {
	descriptors, ok := c[d.Service]
	if !ok {
		return false
	}
	_, ok = descriptors[d.Descriptor]
	return ok
}

// Resource returns the resource configured for d, if any.
func (c Config) Resource(d Destination) string {
	return c[d.Service][d.Descriptor]
}

// Services returns the configured service names in sorted order.
func (c Config) Services() []string {
	out := make([]string, 0, len(c))
	for s := range c {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// LoadConfig reads the routing configuration at path. Files ending in .yaml or
// .yml are parsed as YAML, everything else as JSON.
//
// The returned error is always a *types.AppError: ErrCodeConfigUnreadable when
// the file cannot be read, ErrCodeConfigParse when its content is invalid and
// ErrCodeConfigEmpty when it declares no services.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigUnreadable,
			fmt.Sprintf("cannot read routing config %s", path), err)
	}

	cfg, err := ParseConfig(raw, isYAML(path))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigParse,
			fmt.Sprintf("the %s file could not be loaded", path), err)
	}
	if len(cfg) == 0 {
		return nil, types.NewAppError(types.ErrCodeConfigEmpty,
			fmt.Sprintf("the %s file declares no outputs", path), nil)
	}
	return cfg, nil
}

// ParseConfig decodes routing configuration content. When fromYAML is set the
// content is converted from YAML first.
func ParseConfig(raw []byte, fromYAML bool) (Config, error) {
	if fromYAML {
		converted, err := yaml.YAMLToJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("yaml: %w", err)
		}
		raw = converted
	}

	var services map[string]json.RawMessage
	if err := json.Unmarshal(raw, &services); err != nil {
		return nil, err
	}
	if services == nil {
		return nil, fmt.Errorf("routing config must be an object of services")
	}

	cfg := make(Config, len(services))
	for service, body := range services {
		descriptors, err := parseDescriptors(body)
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", service, err)
		}
		cfg[service] = descriptors
	}
	return cfg, nil
}

func parseDescriptors(body json.RawMessage) (map[string]string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty descriptor declaration")
	}

	switch trimmed[0] {
	case '[':
		var list []string
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("descriptors must be strings: %w", err)
		}
		out := make(map[string]string, len(list))
		for _, d := range list {
			out[d] = ""
		}
		return out, nil
	case '{':
		var resources map[string]string
		if err := json.Unmarshal(trimmed, &resources); err != nil {
			return nil, fmt.Errorf("descriptor resources must be strings: %w", err)
		}
		return resources, nil
	default:
		return nil, fmt.Errorf("descriptors must be a list or an object")
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
