package models

import (
	"go.mongodb.org/mongo-driver/bson"
)

// Document is a single schema-backed record as it travels to and from the store.
type Document = bson.M

// Definition is the declarative schema for one collection.
type Definition struct {
	// Name is the collection key. It is injected by the registry from the definitions map.
	Name string `bson:"name"`

	// Singular is the model display name, unique across all definitions.
	Singular string `bson:"singular"`

	// Fields maps field names to their specification.
	Fields map[string]*FieldSpec `bson:"fields"`
}

// Clone returns a copy of the definition that shares no maps with the receiver.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	clone := &Definition{
		Name:     d.Name,
		Singular: d.Singular,
		Fields:   make(map[string]*FieldSpec, len(d.Fields)),
	}
	for name, spec := range d.Fields {
		clone.Fields[name] = spec.Clone()
	}
	return clone
}

// FieldKind tags the variant held by a FieldSpec.
type FieldKind int

const (
	// FieldPlain is a scalar value with no reference.
	FieldPlain FieldKind = iota
	// FieldRef references a document of another model by its singular name.
	FieldRef
	// FieldArray wraps an element spec.
	FieldArray
	// FieldSubDocument nests a set of named fields.
	FieldSubDocument
)

func (k FieldKind) String() string {
	switch k {
	case FieldPlain:
		return "plain"
	case FieldRef:
		return "ref"
	case FieldArray:
		return "array"
	case FieldSubDocument:
		return "subdocument"
	default:
		return "unknown"
	}
}

// FieldSpec describes one field of a definition.
type FieldSpec struct {
	Kind FieldKind

	// Type is the value type of a plain field, e.g. "string". Opaque to the registry.
	Type string

	// Ref is the singular model name referenced by a FieldRef.
	Ref string

	// Elem is the element spec of a FieldArray.
	Elem *FieldSpec

	// Fields holds the nested fields of a FieldSubDocument.
	Fields map[string]*FieldSpec
}

// Plain builds a plain field of the given type.
func Plain(typ string) *FieldSpec {
	return &FieldSpec{Kind: FieldPlain, Type: typ}
}

// Ref builds a reference to the model with the given singular name.
func Ref(model string) *FieldSpec {
	return &FieldSpec{Kind: FieldRef, Ref: model}
}

// ArrayOf builds an array field holding elem.
func ArrayOf(elem *FieldSpec) *FieldSpec {
	return &FieldSpec{Kind: FieldArray, Elem: elem}
}

// SubDocument builds a nested document field.
func SubDocument(fields map[string]*FieldSpec) *FieldSpec {
	return &FieldSpec{Kind: FieldSubDocument, Fields: fields}
}

func (f *FieldSpec) Clone() *FieldSpec {
	if f == nil {
		return nil
	}
	clone := &FieldSpec{Kind: f.Kind, Type: f.Type, Ref: f.Ref, Elem: f.Elem.Clone()}
	if f.Fields != nil {
		clone.Fields = make(map[string]*FieldSpec, len(f.Fields))
		for name, spec := range f.Fields {
			clone.Fields[name] = spec.Clone()
		}
	}
	return clone
}

// CollectionState is the per-collection entry of the meta ledger.
type CollectionState struct {
	New bool `bson:"new" json:"new"`
}

// Ledger is the persisted meta document tracking database and collection freshness.
type Ledger struct {
	ID          int                        `bson:"_id" json:"id"`
	NewDatabase bool                       `bson:"newDatabase" json:"newDatabase"`
	Collections map[string]CollectionState `bson:"collections" json:"collections"`
}

// Clone returns a deep copy of the ledger.
func (l Ledger) Clone() Ledger {
	clone := Ledger{ID: l.ID, NewDatabase: l.NewDatabase}
	clone.Collections = make(map[string]CollectionState, len(l.Collections))
	for name, state := range l.Collections {
		clone.Collections[name] = state
	}
	return clone
}
