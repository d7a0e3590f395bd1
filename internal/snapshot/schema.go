package snapshot

import (
	"bytes"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaURL = "https://notifyconsole.local/schema/snapshot.json"

const snapshotSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id"],
    "properties": {
      "id": {"type": "string"},
      "type": {"type": "string"},
      "message": {"type": "string"},
      "recipient": {"type": "string"},
      "timestamp": {"type": "string"},
      "read": {"type": "boolean"},
      "raw": {"type": ["object", "string", "null"]}
    }
  }
}`

var compiledSchema struct {
	once   sync.Once
	schema *jsonschema.Schema
	err    error
}

func loadSchema() (*jsonschema.Schema, error) {
	compiledSchema.once.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(snapshotSchema))
		if err != nil {
			compiledSchema.err = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, doc); err != nil {
			compiledSchema.err = err
			return
		}
		compiledSchema.schema, compiledSchema.err = compiler.Compile(schemaURL)
	})
	return compiledSchema.schema, compiledSchema.err
}

func validateDocument(data []byte) error {
	sch, err := loadSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return err
	}
	return sch.Validate(inst)
}
