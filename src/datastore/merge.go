package datastore

import (
	"fmt"
	"strings"

	"sevr/src/helpers"

	"go.mongodb.org/mongo-driver/bson"
)

// idKey gives each document id a map key that keeps ids of different types apart.
func idKey(id interface{}) string {
	return fmt.Sprintf("%T:%v", id, id)
}

// applySet merges set into doc the way $set does, treating dotted keys as
// paths into nested documents. Missing intermediate documents are created.
func applySet(doc bson.M, set bson.M) error {
	for path, value := range set {
		parts := strings.Split(path, ".")
		current := doc
		for _, part := range parts[:len(parts)-1] {
			next, err := childDocument(current, part, path)
			if err != nil {
				return err
			}
			current = next
		}
		current[parts[len(parts)-1]] = value
	}
	return nil
}

func childDocument(parent bson.M, key, path string) (bson.M, error) {
	switch child := parent[key].(type) {
	case nil:
		created := bson.M{}
		parent[key] = created
		return created, nil
	case bson.M:
		return child, nil
	case map[string]interface{}:
		converted := bson.M(child)
		parent[key] = converted
		return converted, nil
	case bson.D:
		converted := make(bson.M, len(child))
		for _, elem := range child {
			converted[elem.Key] = elem.Value
		}
		parent[key] = converted
		return converted, nil
	default:
		return nil, fmt.Errorf("cannot set '%s': '%s' is not a document", path, key)
	}
}

// cloneDocument returns a deep copy of doc by round-tripping it through BSON.
func cloneDocument(doc bson.M) (bson.M, error) {
	data, err := helpers.EncodeBSON(doc)
	if err != nil {
		return nil, err
	}
	var clone bson.M
	if err := helpers.DecodeBSON(data, &clone); err != nil {
		return nil, err
	}
	return clone, nil
}

// decodeInto decodes doc into out through BSON so structs with bson tags work.
func decodeInto(doc bson.M, out interface{}) error {
	data, err := helpers.EncodeBSON(doc)
	if err != nil {
		return err
	}
	return helpers.DecodeBSON(data, out)
}
