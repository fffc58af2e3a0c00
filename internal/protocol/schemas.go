package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var schemaFiles = map[string]string{
	TypeContribution: "contribution.schema.json",
	TypeTransfer:     "transfer.schema.json",
	TypePunishment:   "punishment.schema.json",
	TypeReject:       "reject.schema.json",
	TypeRoundResult:  "round_result.schema.json",
}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		out := make(map[string]*jsonschema.Schema, len(schemaFiles))
		for typ, name := range schemaFiles {
			raw, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				schemasErr = err
				return
			}
			url := "mem://protocol/" + name
			if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
				schemasErr = fmt.Errorf("%s: %w", name, err)
				return
			}
			s, err := c.Compile(url)
			if err != nil {
				schemasErr = fmt.Errorf("%s: %w", name, err)
				return
			}
			out[typ] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

// Validate checks a raw message against the schema for its type.
func Validate(raw []byte) (BaseMessage, error) {
	base, err := DecodeBase(raw)
	if err != nil {
		return base, err
	}
	all, err := loadSchemas()
	if err != nil {
		return base, err
	}
	s, ok := all[base.Type]
	if !ok {
		return base, fmt.Errorf("unknown message type %q", base.Type)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return base, err
	}
	if err := s.Validate(v); err != nil {
		return base, err
	}
	return base, nil
}
