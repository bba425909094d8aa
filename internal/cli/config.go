package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"
)

// YAMLLoader is a kong.ConfigurationLoader for YAML files. Nested maps are
// flattened with "-" and underscores are read as dashes. A key nested
// under a command name applies to that command's flag only:
//
//	silent_threshold: 0.05
//	retime:
//	  speed: "8:1"
//
// Flags given on the command line take precedence over the file.
func YAMLLoader(r io.Reader) (kong.Resolver, error) {
	var raw map[string]any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode YAML config: %w", err)
	}

	values := map[string]string{}
	flatten("", raw, values)

	var f kong.ResolverFunc = func(_ *kong.Context, parent *kong.Path, flag *kong.Flag) (any, error) {
		name := normalizeKey(flag.Name)
		if parent != nil && parent.Command != nil {
			if v, ok := values[normalizeKey(parent.Command.Name)+"-"+name]; ok {
				return v, nil
			}
		}
		if v, ok := values[name]; ok {
			return v, nil
		}
		return nil, nil
	}
	return f, nil
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := normalizeKey(k)
		if prefix != "" {
			key = prefix + "-" + key
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case []any:
			parts := make([]string, len(val))
			for i, p := range val {
				parts[i] = fmt.Sprint(p)
			}
			out[key] = strings.Join(parts, ",")
		case nil:
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

func normalizeKey(k string) string {
	return strings.ReplaceAll(strings.ToLower(k), "_", "-")
}
