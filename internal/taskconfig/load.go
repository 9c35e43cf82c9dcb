package taskconfig

import (
	"encoding/json"
	"fmt"
	"os"
)

const discriminantField = "task_type"

// Config is one parsed task document: the resolved kind and its payload.
type Config struct {
	Kind    Kind
	Payload Payload
}

// Common returns the envelope of the active variant.
func (c Config) Common() *CommonConfig {
	return c.Payload.Common()
}

// Load reads the task document at path using the platform catalog and forces
// setup_dir to setupDir.
func Load(path, setupDir string) (Config, error) {
	return DefaultCatalog().Load(path, setupDir)
}

// Load reads the task document at path and forces setup_dir to setupDir.
func (c *Catalog) Load(path, setupDir string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: read %s: %w", ErrIO, path, err)
	}
	cfg, err := c.Parse(data)
	if err != nil {
		return Config{}, err
	}
	cfg.Common().SetupDir = setupDir
	return cfg, nil
}

// Parse decodes a task document. The document is first read as a generic
// object to resolve task_type, then decoded into the matching payload.
func (c *Catalog) Parse(data []byte) (Config, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("%w: invalid document: %w", ErrSchema, err)
	}

	raw, ok := doc[discriminantField]
	if !ok {
		return Config{}, fmt.Errorf("%w: missing %s", ErrSchema, discriminantField)
	}
	var tag string
	if err := json.Unmarshal(raw, &tag); err != nil {
		return Config{}, fmt.Errorf("%w: %s must be a string", ErrSchema, discriminantField)
	}

	variant, ok := c.Lookup(tag)
	if !ok {
		if known, found := knownTag(tag); found {
			return Config{}, fmt.Errorf(
				"%w: %s %q (%s) is not available on %s",
				ErrSchema,
				discriminantField,
				tag,
				known.Kind,
				c.goos,
			)
		}
		return Config{}, fmt.Errorf("%w: unknown %s %q", ErrSchema, discriminantField, tag)
	}

	payload := variant.New()
	if err := json.Unmarshal(data, payload); err != nil {
		return Config{}, fmt.Errorf("%w: %s payload: %w", ErrSchema, variant.Kind, err)
	}
	if err := payload.validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %s payload: %w", ErrSchema, variant.Kind, err)
	}
	return Config{Kind: variant.Kind, Payload: payload}, nil
}
