package facts

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaDocument string

// Kind classifies a C symbol.
type Kind string

const (
	KindFunction      Kind = "function"
	KindStruct        Kind = "struct"
	KindEnum          Kind = "enum"
	KindTypedef       Kind = "typedef"
	KindUnion         Kind = "union"
	KindGlobal        Kind = "global"
	KindMacroConstant Kind = "macro_constant"
)

// IsType reports whether the kind describes a declaration rather than
// executable code. Such symbols get translated definitions but no
// differential tests.
func (k Kind) IsType() bool {
	switch k {
	case KindStruct, KindEnum, KindTypedef, KindUnion, KindMacroConstant:
		return true
	default:
		return false
	}
}

// Record is one extracted symbol. Extractors may annotate records with
// cycle membership hints; those are not modelled here because strongly
// connected groups are recomputed exactly from Dependencies when the
// graph is built.
type Record struct {
	Name         string   `json:"name" yaml:"name"`
	Kind         Kind     `json:"kind" yaml:"kind"`
	File         string   `json:"file" yaml:"file"`
	Line         int      `json:"line" yaml:"line"`
	Signature    string   `json:"signature,omitempty" yaml:"signature,omitempty"`
	Definition   string   `json:"definition,omitempty" yaml:"definition,omitempty"`
	Static       bool     `json:"static,omitempty" yaml:"static,omitempty"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

type document struct {
	Symbols []Record `json:"symbols"`
}

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("facts-schema.json", strings.NewReader(schemaDocument)); err != nil {
		panic(fmt.Sprintf("facts: add schema resource: %v", err))
	}
	schema, err := compiler.Compile("facts-schema.json")
	if err != nil {
		panic(fmt.Sprintf("facts: compile schema: %v", err))
	}
	return schema
}

// Load reads, validates, and filters a facts file. The file format is chosen
// by extension: .yaml and .yml files are decoded as YAML, everything else as
// JSON. Dependencies on symbols removed by the filter are pruned; a
// dependency on a name the facts file never defines is left in place for the
// graph builder to reject.
func Load(path string, filter Filter) ([]Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read facts file: %w", err)
	}

	jsonBytes := raw
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var node any
		if err := yaml.Unmarshal(raw, &node); err != nil {
			return nil, fmt.Errorf("parse facts yaml: %w", err)
		}
		jsonBytes, err = json.Marshal(node)
		if err != nil {
			return nil, fmt.Errorf("convert facts yaml: %w", err)
		}
	}

	var generic any
	decoder := json.NewDecoder(bytes.NewReader(jsonBytes))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("parse facts file: %w", err)
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("facts file failed schema validation: %w", err)
	}

	var doc document
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return nil, fmt.Errorf("decode facts records: %w", err)
	}

	defined := make(map[string]struct{}, len(doc.Symbols))
	for _, record := range doc.Symbols {
		if _, dup := defined[record.Name]; dup {
			return nil, fmt.Errorf("duplicate symbol %q in facts file", record.Name)
		}
		defined[record.Name] = struct{}{}
	}

	kept := make([]Record, 0, len(doc.Symbols))
	keptNames := make(map[string]struct{}, len(doc.Symbols))
	for _, record := range doc.Symbols {
		ok, err := filter.Match(record.File)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		kept = append(kept, record)
		keptNames[record.Name] = struct{}{}
	}

	for i := range kept {
		deps := kept[i].Dependencies
		pruned := deps[:0]
		for _, dep := range deps {
			if dep == kept[i].Name {
				continue
			}
			if _, wasDefined := defined[dep]; wasDefined {
				if _, stillHere := keptNames[dep]; !stillHere {
					continue
				}
			}
			pruned = append(pruned, dep)
		}
		sort.Strings(pruned)
		kept[i].Dependencies = pruned
	}

	return kept, nil
}
