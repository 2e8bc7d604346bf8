// Package config loads certchain profile files for kong.
//
// A profile is a YAML document whose top-level keys are flag names. Keys may
// also be nested under a command name to apply to that command only:
//
//	organization: Erfi Corp
//	country: SG
//	issue:
//	  days: 825
//	  output-dir: ./certs
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"
)

// DefaultPaths are the profile locations checked in order. Missing files are skipped.
var DefaultPaths = []string{
	"./certchain.yaml",
	"~/.config/certchain/config.yaml",
}

// YAML is a kong.ConfigurationLoader for profile files.
func YAML(r io.Reader) (kong.Resolver, error) {
	values := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	var f kong.ResolverFunc = func(kctx *kong.Context, parent *kong.Path, flag *kong.Flag) (any, error) {
		if parent != nil {
			if node := parent.Node(); node != nil && node.Type == kong.CommandNode {
				if section, ok := values[node.Name].(map[string]any); ok {
					if raw, ok := lookup(section, flag.Name); ok {
						return scalar(raw), nil
					}
				}
			}
		}

		if raw, ok := lookup(values, flag.Name); ok {
			return scalar(raw), nil
		}

		return nil, nil
	}

	return f, nil
}

// lookup accepts both the dashed flag name and its snake_case form.
func lookup(values map[string]any, name string) (any, bool) {
	if raw, ok := values[name]; ok {
		return raw, true
	}
	raw, ok := values[strings.ReplaceAll(name, "-", "_")]
	return raw, ok
}

// scalar flattens YAML values into the text form kong's mappers parse.
func scalar(raw any) any {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v)
	}
}
