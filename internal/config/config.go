package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dnswlt/dpmap/internal/filter"
	"github.com/dnswlt/dpmap/internal/store"
	"gopkg.in/yaml.v3"
)

// OutputConfig controls how converted records are written.
type OutputConfig struct {
	Format string `yaml:"format"` // "json" or "yaml"
	Indent int    `yaml:"indent"` // Spaces per indentation level. 0 selects the format's default.
}

// InputConfig controls which files are read as records.
type InputConfig struct {
	// File extensions, with leading dot, that hold records.
	Extensions []string `yaml:"extensions"`
}

// Bundle is the umbrella struct for the serialized application configuration YAML.
type Bundle struct {
	Output OutputConfig `yaml:"output"`
	Input  InputConfig  `yaml:"input"`
	// A CEL expression selecting the records to convert. Empty selects all.
	Filter string `yaml:"filter"`
	// Maximum number of files converted in parallel.
	Concurrency int `yaml:"concurrency"`
}

func Default() *Bundle {
	return &Bundle{
		Output: OutputConfig{
			Format: string(store.FormatJSON),
		},
		Input: InputConfig{
			Extensions: []string{".json", ".yaml", ".yml"},
		},
		Concurrency: 8,
	}
}

// Validate checks field values and normalizes extensions to lower case
// with a leading dot.
func (b *Bundle) Validate() error {
	if _, err := store.ParseFormat(b.Output.Format); err != nil {
		return fmt.Errorf("output.format: %w", err)
	}
	if b.Output.Indent < 0 || b.Output.Indent > 16 {
		return fmt.Errorf("output.indent: must be between 0 and 16, got %d", b.Output.Indent)
	}
	if len(b.Input.Extensions) == 0 {
		return errors.New("input.extensions: must not be empty")
	}
	for i, ext := range b.Input.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" || ext == "." {
			return fmt.Errorf("input.extensions[%d]: empty extension", i)
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		b.Input.Extensions[i] = ext
	}
	if b.Concurrency < 1 {
		return fmt.Errorf("concurrency: must be positive, got %d", b.Concurrency)
	}
	if _, err := filter.Compile(b.Filter); err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	return nil
}

// Load reads the configuration at configPath from st. Fields absent from
// the file keep their Default values. Unknown fields are an error.
func Load(st store.Store, configPath string) (*Bundle, error) {
	bs, err := st.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("could not read config %q: %w", configPath, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(bs))
	dec.KnownFields(true)
	bundle := Default()
	if err := dec.Decode(bundle); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid configuration YAML in %q: %w", configPath, err)
	}
	if err := bundle.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %q: %w", configPath, err)
	}
	return bundle, nil
}
