package config

import (
	"encoding/json"
	"fmt"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"
)

// ArgList is a command argument list. Roster files may spell it either as a
// list or as a single string, which is split shell-style.
type ArgList []string

// ParseArgList splits a shell-style argument string.
func ParseArgList(s string) (ArgList, error) {
	parts, err := shlex.Split(s)
	if err != nil {
		return nil, fmt.Errorf("splitting %q: %w", s, err)
	}
	return ArgList(parts), nil
}

func (a *ArgList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := ParseArgList(s)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("argument list must be a string or a list of strings: %w", err)
	}
	*a = list
	return nil
}

func (a *ArgList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		parsed, err := ParseArgList(node.Value)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*a = list
		return nil
	default:
		return fmt.Errorf("line %d: argument list must be a string or a sequence", node.Line)
	}
}

// UnmarshalTOML implements toml.Unmarshaler.
func (a *ArgList) UnmarshalTOML(v any) error {
	switch val := v.(type) {
	case string:
		parsed, err := ParseArgList(val)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	case []any:
		list := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("argument list entries must be strings, got %T", item)
			}
			list = append(list, s)
		}
		*a = list
		return nil
	default:
		return fmt.Errorf("argument list must be a string or an array, got %T", v)
	}
}
