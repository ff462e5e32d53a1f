package engine

import (
	"fmt"
	"os"
	"sort"

	"sevr/src/helpers"
	"sevr/src/models"

	"gopkg.in/yaml.v3"
)

// definitionFile is the on-disk shape of a collection definitions file:
//
//	collections:
//	  posts:
//	    singular: Post
//	    fields:
//	      title: string
//	      author: {ref: User}
//	      tags: [{ref: Tag}]
//	      meta: {fields: {editor: {ref: User}}}
type definitionFile struct {
	Collections map[string]rawDefinition `yaml:"collections"`
}

type rawDefinition struct {
	Singular string               `yaml:"singular"`
	Fields   map[string]*rawField `yaml:"fields"`
}

type rawField struct {
	Type   string               `yaml:"type"`
	Ref    string               `yaml:"ref"`
	Array  *rawField            `yaml:"array"`
	Fields map[string]*rawField `yaml:"fields"`
}

// UnmarshalYAML accepts a bare type name, a one-element sequence as an array
// shorthand, or the long mapping form.
func (f *rawField) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		f.Type = value.Value
		return nil
	case yaml.SequenceNode:
		if len(value.Content) != 1 {
			return fmt.Errorf("line %d: array shorthand must have exactly one element", value.Line)
		}
		elem := &rawField{}
		if err := value.Content[0].Decode(elem); err != nil {
			return err
		}
		f.Array = elem
		return nil
	}

	type plain rawField
	return value.Decode((*plain)(f))
}

func (f *rawField) toSpec(path string) (*models.FieldSpec, error) {
	if f == nil {
		return models.Plain(""), nil
	}

	set := 0
	for _, declared := range []bool{f.Ref != "", f.Array != nil, f.Fields != nil} {
		if declared {
			set++
		}
	}
	if set > 1 {
		return nil, fmt.Errorf("field '%s' declares more than one of ref, array and fields", path)
	}

	switch {
	case f.Ref != "":
		return models.Ref(f.Ref), nil
	case f.Array != nil:
		elem, err := f.Array.toSpec(path + "[]")
		if err != nil {
			return nil, err
		}
		return models.ArrayOf(elem), nil
	case f.Fields != nil:
		fields := make(map[string]*models.FieldSpec, len(f.Fields))
		for name, sub := range f.Fields {
			spec, err := sub.toSpec(path + "." + name)
			if err != nil {
				return nil, err
			}
			fields[name] = spec
		}
		return models.SubDocument(fields), nil
	}
	return models.Plain(f.Type), nil
}

// ParseDefinitions decodes a YAML definitions document into a map of
// collection name to definition.
func ParseDefinitions(data []byte) (map[string]*models.Definition, error) {
	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse definitions: %w", err)
	}

	names := make([]string, 0, len(file.Collections))
	for name := range file.Collections {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make(map[string]*models.Definition, len(names))
	for _, name := range names {
		raw := file.Collections[name]
		if raw.Singular == "" {
			return nil, fmt.Errorf("collection '%s' has no singular name", name)
		}

		def := &models.Definition{
			Name:     name,
			Singular: raw.Singular,
			Fields:   make(map[string]*models.FieldSpec, len(raw.Fields)),
		}
		for field, rf := range raw.Fields {
			spec, err := rf.toSpec(field)
			if err != nil {
				return nil, fmt.Errorf("collection '%s': %w", name, err)
			}
			def.Fields[field] = spec
		}
		defs[name] = def
	}
	return defs, nil
}

// LoadDefinitionsFile reads and parses a definitions file from disk.
func LoadDefinitionsFile(path string) (map[string]*models.Definition, error) {
	if !helpers.FileExists(path) {
		return nil, fmt.Errorf("definitions file %s does not exist", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading definitions file %s: %w", path, err)
	}
	return ParseDefinitions(data)
}
