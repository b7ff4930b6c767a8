// Package update implements the JSON-Patch-based attribute and ingest-id
// mutations the HTTP collaborator exposes: a restricted RFC 6902 applier,
// the three-shape patch body decode, and the ingest-id tag write-back
// policy.
package update

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/orcabus/filemanager/internal/apperrors"
)

// Op is one of the RFC 6902 operation names this engine supports.
type Op string

const (
	OpAdd     Op = "add"
	OpCopy    Op = "copy"
	OpTest    Op = "test"
	OpRemove  Op = "remove"
	OpReplace Op = "replace"
)

// Operation is a single JSON-Patch step.
type Operation struct {
	Op    Op              `json:"op"`
	Path  string          `json:"path"`
	From  string          `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Patch is an ordered sequence of JSON-Patch operations.
type Patch []Operation

// allowedOps is the set of operations permitted against a row's
// attributes document. "move" is never allowed; remove/replace are gated
// behind the append-only policy, which narrows the set to add/copy/test.
func allowedOps(appendOnly bool) map[Op]bool {
	if appendOnly {
		return map[Op]bool{OpAdd: true, OpCopy: true, OpTest: true}
	}
	return map[Op]bool{OpAdd: true, OpCopy: true, OpTest: true, OpRemove: true, OpReplace: true}
}

// clientError is a validation failure the HTTP collaborator maps to 400,
// distinguished from apperrors.KindDatabase faults that map to 5xx.
func clientError(format string, args ...any) error {
	return apperrors.New(apperrors.KindInvalidQuery, fmt.Sprintf(format, args...))
}

// ApplyAttributes decodes attributes as a JSON document (defaulting to an
// empty object when nil), applies patch in order, and returns the
// re-encoded document. A failing "test" or a disallowed op aborts before
// any mutation is visible to the caller: the result is nil and the input
// bytes are left untouched.
func ApplyAttributes(attributes []byte, patch Patch, appendOnly bool) ([]byte, error) {
	allowed := allowedOps(appendOnly)

	var doc any
	if len(attributes) == 0 {
		doc = map[string]any{}
	} else if err := json.Unmarshal(attributes, &doc); err != nil {
		return nil, apperrors.Wrap(apperrors.KindSerde, "decode attributes", err)
	}

	for _, op := range patch {
		if !allowed[op.Op] {
			return nil, clientError("operation %q is not allowed for an attributes patch", op.Op)
		}
		var err error
		doc, err = applyOne(doc, op)
		if err != nil {
			return nil, err
		}
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSerde, "encode attributes", err)
	}
	return out, nil
}

func applyOne(doc any, op Operation) (any, error) {
	switch op.Op {
	case OpAdd:
		var value any
		if err := json.Unmarshal(op.Value, &value); err != nil {
			return nil, apperrors.Wrap(apperrors.KindSerde, "decode add value", err)
		}
		return setPointer(doc, op.Path, value)
	case OpReplace:
		var value any
		if err := json.Unmarshal(op.Value, &value); err != nil {
			return nil, apperrors.Wrap(apperrors.KindSerde, "decode replace value", err)
		}
		if _, err := getPointer(doc, op.Path); err != nil {
			return nil, err
		}
		return setPointer(doc, op.Path, value)
	case OpRemove:
		return removePointer(doc, op.Path)
	case OpCopy:
		value, err := getPointer(doc, op.From)
		if err != nil {
			return nil, err
		}
		return setPointer(doc, op.Path, value)
	case OpTest:
		var want any
		if err := json.Unmarshal(op.Value, &want); err != nil {
			return nil, apperrors.Wrap(apperrors.KindSerde, "decode test value", err)
		}
		got, err := getPointer(doc, op.Path)
		if err != nil {
			return nil, err
		}
		wantJSON, _ := json.Marshal(want)
		gotJSON, _ := json.Marshal(got)
		if string(wantJSON) != string(gotJSON) {
			return nil, clientError("test failed at path %q", op.Path)
		}
		return doc, nil
	default:
		return nil, clientError("unsupported patch operation %q", op.Op)
	}
}

// pointerTokens splits a JSON Pointer (RFC 6901) into unescaped tokens.
// The root pointer "" yields no tokens.
func pointerTokens(pointer string) ([]string, error) {
	if pointer == "" {
		return nil, nil
	}
	if pointer == "/" {
		return []string{""}, nil
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, clientError("invalid JSON pointer %q: must start with '/'", pointer)
	}
	raw := strings.Split(pointer[1:], "/")
	tokens := make([]string, len(raw))
	for i, t := range raw {
		t = strings.ReplaceAll(t, "~1", "/")
		t = strings.ReplaceAll(t, "~0", "~")
		tokens[i] = t
	}
	return tokens, nil
}

func getPointer(doc any, pointer string) (any, error) {
	tokens, err := pointerTokens(pointer)
	if err != nil {
		return nil, err
	}
	cur := doc
	for _, tok := range tokens {
		next, err := descend(cur, tok, pointer)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func descend(cur any, tok string, pointer string) (any, error) {
	switch v := cur.(type) {
	case map[string]any:
		val, ok := v[tok]
		if !ok {
			return nil, clientError("path %q does not exist", pointer)
		}
		return val, nil
	case []any:
		idx, err := strconv.Atoi(tok)
		if err != nil || idx < 0 || idx >= len(v) {
			return nil, clientError("path %q: invalid array index %q", pointer, tok)
		}
		return v[idx], nil
	default:
		return nil, clientError("path %q: cannot descend into a scalar", pointer)
	}
}

func setPointer(doc any, pointer string, value any) (any, error) {
	tokens, err := pointerTokens(pointer)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return value, nil
	}
	return setAt(doc, tokens, value, pointer)
}

func setAt(cur any, tokens []string, value any, pointer string) (any, error) {
	tok := tokens[0]
	switch v := cur.(type) {
	case map[string]any:
		if len(tokens) == 1 {
			v[tok] = value
			return v, nil
		}
		child, ok := v[tok]
		if !ok {
			child = map[string]any{}
		}
		updated, err := setAt(child, tokens[1:], value, pointer)
		if err != nil {
			return nil, err
		}
		v[tok] = updated
		return v, nil
	case []any:
		if tok == "-" {
			if len(tokens) == 1 {
				return append(v, value), nil
			}
			return nil, clientError("path %q: cannot descend past array append token", pointer)
		}
		idx, err := strconv.Atoi(tok)
		if err != nil || idx < 0 || idx > len(v) {
			return nil, clientError("path %q: invalid array index %q", pointer, tok)
		}
		if len(tokens) == 1 {
			if idx == len(v) {
				return append(v, value), nil
			}
			v[idx] = value
			return v, nil
		}
		updated, err := setAt(v[idx], tokens[1:], value, pointer)
		if err != nil {
			return nil, err
		}
		v[idx] = updated
		return v, nil
	case nil:
		m := map[string]any{}
		return setAt(m, tokens, value, pointer)
	default:
		return nil, clientError("path %q: cannot descend into a scalar", pointer)
	}
}

func removePointer(doc any, pointer string) (any, error) {
	tokens, err := pointerTokens(pointer)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, clientError("cannot remove the document root")
	}
	return removeAt(doc, tokens, pointer)
}

func removeAt(cur any, tokens []string, pointer string) (any, error) {
	tok := tokens[0]
	switch v := cur.(type) {
	case map[string]any:
		if len(tokens) == 1 {
			if _, ok := v[tok]; !ok {
				return nil, clientError("path %q does not exist", pointer)
			}
			delete(v, tok)
			return v, nil
		}
		child, ok := v[tok]
		if !ok {
			return nil, clientError("path %q does not exist", pointer)
		}
		updated, err := removeAt(child, tokens[1:], pointer)
		if err != nil {
			return nil, err
		}
		v[tok] = updated
		return v, nil
	case []any:
		idx, err := strconv.Atoi(tok)
		if err != nil || idx < 0 || idx >= len(v) {
			return nil, clientError("path %q: invalid array index %q", pointer, tok)
		}
		if len(tokens) == 1 {
			return append(v[:idx], v[idx+1:]...), nil
		}
		updated, err := removeAt(v[idx], tokens[1:], pointer)
		if err != nil {
			return nil, err
		}
		v[idx] = updated
		return v, nil
	default:
		return nil, clientError("path %q: cannot descend into a scalar", pointer)
	}
}

// BodyKind distinguishes which field of the three-shape patch body wire
// format a decoded request targets.
type BodyKind string

const (
	BodyAttributes BodyKind = "attributes"
	BodyIngestID   BodyKind = "ingestId"
)

// DecodePatchBody accepts any of the three wire shapes: a bare JSON-Patch
// array (attributes), {"attributes": [...]}, or {"ingestId": [...]}.
func DecodePatchBody(raw []byte) (BodyKind, Patch, error) {
	var bare Patch
	if err := json.Unmarshal(raw, &bare); err == nil {
		return BodyAttributes, bare, nil
	}

	var nested struct {
		Attributes *Patch `json:"attributes"`
		IngestID   *Patch `json:"ingestId"`
	}
	if err := json.Unmarshal(raw, &nested); err != nil {
		return "", nil, clientError("invalid patch body: %v", err)
	}
	switch {
	case nested.Attributes != nil:
		return BodyAttributes, *nested.Attributes, nil
	case nested.IngestID != nil:
		return BodyIngestID, *nested.IngestID, nil
	default:
		return "", nil, clientError("patch body must contain a bare patch array, \"attributes\", or \"ingestId\"")
	}
}

// ExtractIngestID validates an ingest-id patch: exactly one operation
// whose path is "/". add/replace set the ingest id, remove clears it
// (returns nil, nil).
func ExtractIngestID(patch Patch) (*uuid.UUID, error) {
	if len(patch) != 1 {
		return nil, clientError("expected exactly one operation for an ingestId update")
	}
	op := patch[0]
	if op.Path != "/" {
		return nil, clientError("expected path \"/\" for an ingestId update")
	}

	switch op.Op {
	case OpAdd, OpReplace:
		var s string
		if err := json.Unmarshal(op.Value, &s); err != nil {
			return nil, clientError("expected a string value for an ingestId update: %v", err)
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, clientError("invalid UUID for ingestId update: %v", err)
		}
		return &id, nil
	case OpRemove:
		return nil, nil
	default:
		return nil, clientError("expected add, replace or remove for an ingestId update, got %q", op.Op)
	}
}
