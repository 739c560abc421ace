package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// RootPath replaces the whole state with a step's result.
const RootPath = "$"

// validPath accepts "$" or a single top level member such as "$.textract".
func validPath(path string) error {
	if path == RootPath {
		return nil
	}
	if !strings.HasPrefix(path, "$.") {
		return errors.Errorf("invalid result path %q", path)
	}
	name := path[2:]
	if name == "" || strings.ContainsAny(name, ".[]$") {
		return errors.Errorf("unsupported result path %q", path)
	}
	return nil
}

// applyResultPath places result into state at path.
func applyResultPath(state, result json.RawMessage, path string) (json.RawMessage, error) {
	if path == RootPath {
		return result, nil
	}

	doc := make(map[string]json.RawMessage)
	if len(state) > 0 {
		if err := json.Unmarshal(state, &doc); err != nil {
			return nil, errors.Wrap(err, "state is not an object")
		}
		if doc == nil {
			doc = make(map[string]json.RawMessage)
		}
	}
	doc[path[2:]] = result

	b, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "encoding state")
	}
	return b, nil
}
