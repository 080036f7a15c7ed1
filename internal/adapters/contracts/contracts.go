// Package contracts checks raw import payloads against the embedded JSON
// Schema before they are decoded into domain records.
package contracts

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/okian/comparo/internal/domain/model"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ComparableRecordV1 is the schema of one import record.
const ComparableRecordV1 = "comparable-record.v1.json"

var compiled = mustCompile()

func mustCompile() map[string]*jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true

	out := make(map[string]*jsonschema.Schema)
	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		panic(fmt.Sprintf("contracts: read schemas: %v", err))
	}
	for _, e := range entries {
		data, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			panic(fmt.Sprintf("contracts: read %s: %v", e.Name(), err))
		}
		if err := compiler.AddResource(e.Name(), bytes.NewReader(data)); err != nil {
			panic(fmt.Sprintf("contracts: add %s: %v", e.Name(), err))
		}
	}
	for _, e := range entries {
		s, err := compiler.Compile(e.Name())
		if err != nil {
			panic(fmt.Sprintf("contracts: compile %s: %v", e.Name(), err))
		}
		out[e.Name()] = s
	}
	return out
}

// Validate checks body against the named schema. Violations are returned as
// a *model.ValidationError naming the first offending field.
func Validate(name string, body []byte) error {
	schema, ok := compiled[name]
	if !ok {
		return fmt.Errorf("contracts: unknown schema %q", name)
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return model.NewValidationError("body", "must be valid JSON")
	}
	if err := schema.Validate(v); err != nil {
		return toValidationError(err)
	}
	return nil
}

// DecodeRecord validates body and decodes it into a ComparableRecord.
func DecodeRecord(body []byte) (model.ComparableRecord, error) {
	if err := Validate(ComparableRecordV1, body); err != nil {
		return model.ComparableRecord{}, err
	}
	var rec model.ComparableRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return model.ComparableRecord{}, model.NewValidationError("body", err.Error())
	}
	return rec, nil
}

// SplitBatch splits a JSON array into its raw elements without validating them.
func SplitBatch(body []byte) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, model.NewValidationError("body", "must be a JSON array of records")
	}
	return items, nil
}

func toValidationError(err error) error {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return model.NewValidationError("body", err.Error())
	}
	// The leaf cause names the most specific location.
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	field := strings.ReplaceAll(strings.TrimPrefix(ve.InstanceLocation, "/"), "/", ".")
	if field == "" {
		field = "body"
	}
	return model.NewValidationError(field, ve.Message)
}
