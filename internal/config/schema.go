package config

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Schema generates a JSON Schema document for Config, for editor and CI
// validation of hand-written config files. No pesitd subcommand exposes it.
// This is tooling around the on-disk config format, not a network admin surface.
func Schema() ([]byte, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference: false,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&Config{})
	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("config: marshalling schema: %w", err)
	}
	return out, nil
}
