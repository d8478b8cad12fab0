package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/jrsteele09/go-session-coordinator/internal/utils"
	"gopkg.in/yaml.v3"
)

// readFile parses a flat YAML document of VARIABLE: value pairs.
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[config.Load] read %s: %w", path, err)
	}

	raw := make(map[string]any)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("[config.Load] parse %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		switch tv := v.(type) {
		case nil:
			continue
		case []any:
			values[k] = strings.Join(utils.StringSlice(tv), ",")
		default:
			values[k] = fmt.Sprint(tv)
		}
	}
	return values, nil
}
