package engine

import (
	"fmt"
	"sort"

	"sevr/src/models"

	"go.uber.org/multierr"
)

// ModelSet is the set of known singular model names.
type ModelSet map[string]struct{}

// NewModelSet builds a ModelSet from the given names.
func NewModelSet(names ...string) ModelSet {
	set := make(ModelSet, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

func (s ModelSet) Add(name string) {
	s[name] = struct{}{}
}

func (s ModelSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// ReferenceError reports a field that references a model which is not registered.
type ReferenceError struct {
	Field  string
	Target string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("field `%s` references unknown model `%s`", e.Field, e.Target)
}

// ValidateFieldRef checks that every reference declared by spec, directly or
// nested in arrays and sub-documents, names a model in known.
func ValidateFieldRef(field string, spec *models.FieldSpec, known ModelSet) error {
	if spec == nil {
		return nil
	}

	switch spec.Kind {
	case models.FieldRef:
		if !known.Has(spec.Ref) {
			return &ReferenceError{Field: field, Target: spec.Ref}
		}
	case models.FieldArray:
		return ValidateFieldRef(field+"[]", spec.Elem, known)
	case models.FieldSubDocument:
		for _, name := range sortedFieldNames(spec.Fields) {
			if err := ValidateFieldRef(field+"."+name, spec.Fields[name], known); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsValidFieldRef validates one field and appends any failure to errs.
func IsValidFieldRef(spec *models.FieldSpec, field string, known ModelSet, errs *[]error) bool {
	err := ValidateFieldRef(field, spec, known)
	if err == nil {
		return true
	}
	if errs != nil {
		*errs = append(*errs, err)
	}
	return false
}

// ValidateDefinition checks every field of def and returns all reference
// failures combined, in field name order.
func ValidateDefinition(def *models.Definition, known ModelSet) error {
	var errs []error
	for _, name := range sortedFieldNames(def.Fields) {
		IsValidFieldRef(def.Fields[name], name, known, &errs)
	}
	return multierr.Combine(errs...)
}

func sortedFieldNames(fields map[string]*models.FieldSpec) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
