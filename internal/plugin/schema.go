// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package plugin

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the manifest schema.
const SchemaID = "https://hookhost.dev/schemas/script-manifest.schema.json"

const schemaResource = "script-manifest.schema.json"

// GenerateSchema reflects the JSON Schema of Manifest.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
		FieldNameTag:   "yaml",
	}
	schema := r.Reflect(&Manifest{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "hookhost script manifest"
	schema.Description = "Schema for the optional <script>.yaml next to a hub script"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.In("plugin").Hint("failed to marshal schema").Wrap(err)
	}
	return data, nil
}

var compiledSchema = sync.OnceValues(func() (*jschema.Schema, error) {
	raw, err := GenerateSchema()
	if err != nil {
		return nil, err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, oops.In("plugin").Hint("failed to parse schema").Wrap(err)
	}
	c := jschema.NewCompiler()
	if err := c.AddResource(schemaResource, doc); err != nil {
		return nil, oops.In("plugin").Hint("failed to add schema resource").Wrap(err)
	}
	sch, err := c.Compile(schemaResource)
	if err != nil {
		return nil, oops.In("plugin").Hint("failed to compile schema").Wrap(err)
	}
	return sch, nil
})

// ValidateSchema checks YAML manifest data against the manifest schema.
func ValidateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return ErrInvalidManifest(err)
	}
	// Round-trip through JSON so the validator sees JSON types.
	raw, err := json.Marshal(doc)
	if err != nil {
		return ErrInvalidManifest(err)
	}
	inst, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return ErrInvalidManifest(err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(inst); err != nil {
		return ErrInvalidManifest(err)
	}
	return nil
}

// FormatSchemaError trims validator noise for display.
func FormatSchemaError(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimPrefix(err.Error(), "invalid manifest: ")
}
