package manifest

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// Format is a manifest encoding.
type Format string

const (
	FormatLua  Format = "lua"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Extensions lists the recognized manifest file extensions in lookup order.
var Extensions = []string{".lua", ".yaml", ".yml", ".json"}

// FormatFromPath selects the encoding from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".lua":
		return FormatLua, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unrecognized manifest extension %q (expected .lua, .yaml, .yml or .json)", filepath.Ext(path))
	}
}

// LoadFile reads, decodes, normalizes and validates a manifest file.
func LoadFile(ctx context.Context, path string) (*Manifest, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxManifestSize+1))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if len(data) > MaxManifestSize {
		return nil, &ParseError{
			Message: "manifest too large",
			Detail:  fmt.Sprintf("%s exceeds %d bytes", path, MaxManifestSize),
		}
	}

	return Decode(ctx, format, data)
}

// Decode decodes manifest bytes in the given format.
func Decode(ctx context.Context, format Format, data []byte) (*Manifest, error) {
	var (
		m   *Manifest
		err error
	)

	switch format {
	case FormatLua:
		// ParseString normalizes and validates
		return NewParser().ParseString(ctx, string(data))
	case FormatYAML:
		m, err = decodeYAML(data)
	case FormatJSON:
		m, err = decodeJSON(data)
	default:
		return nil, fmt.Errorf("unknown manifest format %q", format)
	}
	if err != nil {
		return nil, err
	}

	m.Normalize()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeYAML(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Message: "invalid YAML manifest", Detail: "document is empty"}
		}
		return nil, &ParseError{Message: "invalid YAML manifest", Detail: err.Error()}
	}
	return &m, nil
}

//go:embed schema/manifest.schema.json
var schemaJSON []byte

const schemaURL = "https://github.com/ZebulonRouseFrantzich/keg/schema/manifest.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// manifestSchema compiles the embedded JSON Schema once.
func manifestSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("parse embedded schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

func decodeJSON(data []byte) (*Manifest, error) {
	sch, err := manifestSchema()
	if err != nil {
		return nil, err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Message: "invalid JSON manifest", Detail: err.Error()}
	}
	if err := sch.Validate(inst); err != nil {
		return nil, &ParseError{Message: "manifest does not match schema", Detail: err.Error()}
	}

	var m Manifest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, &ParseError{Message: "invalid JSON manifest", Detail: err.Error()}
	}
	return &m, nil
}
