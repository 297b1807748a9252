package sourceschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"horse.fit/finnews/internal/feed"
)

//go:embed sources.schema.json
var sourcesSchemaJSON string

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateSourceList validates a JSON feed-source list against the embedded
// schema and returns the parsed sources. Names must be unique and URLs must
// be absolute http(s) URLs.
func ValidateSourceList(payload []byte) ([]feed.Source, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode source list JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize source list JSON: %w", err)
	}

	var sources []feed.Source
	if err := json.Unmarshal(normalized, &sources); err != nil {
		return nil, fmt.Errorf("unmarshal source list: %w", err)
	}

	if err := validateSemantics(sources); err != nil {
		return nil, err
	}

	return sources, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("sources.schema.json", strings.NewReader(sourcesSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("sources.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("source list is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("source list contains trailing content")
	}

	return value, nil
}

func validateSemantics(sources []feed.Source) error {
	seen := make(map[string]struct{}, len(sources))
	for i, source := range sources {
		name := strings.TrimSpace(source.Name)
		if name == "" {
			return fmt.Errorf("sources[%d]: name must not be empty", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("sources[%d]: duplicate source name %q", i, name)
		}
		seen[name] = struct{}{}

		if err := validateFeedURL(i, source.URL); err != nil {
			return err
		}
	}
	return nil
}

func validateFeedURL(index int, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("sources[%d]: url must not be empty", index)
	}
	parsed, err := url.ParseRequestURI(trimmed)
	if err != nil {
		return fmt.Errorf("sources[%d]: url is not a valid URI: %w", index, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("sources[%d]: url must use http or https", index)
	}
	if parsed.Host == "" {
		return fmt.Errorf("sources[%d]: url must include a host", index)
	}
	return nil
}
