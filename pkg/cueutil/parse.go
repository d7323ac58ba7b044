// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// ParseResult is a successful parse: the decoded Go value plus the
// unified CUE value for callers that need to inspect beyond the struct.
type ParseResult[T any] struct {
	Value   *T
	Unified cue.Value
}

// ParseAndDecode validates user CUE data against an embedded schema and
// decodes it: the schema is compiled, the data is compiled and unified
// with the root definition named by rootDef (e.g. "#Bundle", "#Config"),
// and the unified value is validated and decoded into T. Errors carry the
// filename and CUE path so they point at the offending field.
func ParseAndDecode[T any](schema string, data []byte, rootDef string, opts ...Option) (*ParseResult[T], error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	filename := options.filename
	if filename == "" {
		filename = "<input>"
	}

	// Size gate before any CUE work; compilation cost grows with input.
	if err := CheckFileSize(data, options.maxFileSize, filename); err != nil {
		return nil, err
	}

	unified, err := unifyWithSchema(schema, data, rootDef, filename)
	if err != nil {
		return nil, err
	}

	if err := unified.Validate(cue.Concrete(options.concrete)); err != nil {
		return nil, FormatError(err, filename)
	}

	var decoded T
	if err := unified.Decode(&decoded); err != nil {
		return nil, FormatError(err, filename)
	}
	return &ParseResult[T]{Value: &decoded, Unified: unified}, nil
}

// unifyWithSchema compiles both documents and unifies the user value with
// the schema's root definition. Schema compilation failures are internal
// errors; user data failures are formatted for display.
func unifyWithSchema(schema string, data []byte, rootDef, filename string) (cue.Value, error) {
	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(schema)
	if schemaValue.Err() != nil {
		return cue.Value{}, fmt.Errorf("internal error: failed to compile schema: %w", schemaValue.Err())
	}
	root := schemaValue.LookupPath(cue.ParsePath(rootDef))
	if root.Err() != nil {
		return cue.Value{}, fmt.Errorf("internal error: schema definition %s not found: %w", rootDef, root.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(filename))
	if userValue.Err() != nil {
		return cue.Value{}, FormatError(userValue.Err(), filename)
	}

	return root.Unify(userValue), nil
}
