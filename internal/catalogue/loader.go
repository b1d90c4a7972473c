package catalogue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"gopkg.in/yaml.v3"

	"github.com/HendryAvila/specgate/internal/specerr"
)

// Format is a catalogue document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatHCL  Format = "hcl"
)

// FormatFromPath infers the document format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".hcl":
		return FormatHCL, nil
	default:
		return "", fmt.Errorf("unsupported catalogue extension %q: must be .json, .yaml, .yml or .hcl", filepath.Ext(path))
	}
}

// LoadFile reads, parses, validates and loads a catalogue file.
func LoadFile(path string) (*Catalogue, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, specerr.Invalid("catalogue.load_file", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalogue %s: %w", path, err)
	}
	doc, err := Parse(format, filepath.Base(path), data)
	if err != nil {
		return nil, err
	}
	return FromDocument(doc)
}

// Parse decodes a document without validating it. filename is used for
// HCL diagnostics.
func Parse(format Format, filename string, data []byte) (*Document, error) {
	const op = "catalogue.parse"
	var doc Document
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, specerr.Invalid(op, filename, fmt.Errorf("decoding JSON: %w", err))
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, specerr.Invalid(op, filename, fmt.Errorf("decoding YAML: %w", err))
		}
	case FormatHCL:
		parsed, err := parseHCL(filename, data)
		if err != nil {
			return nil, specerr.Invalid(op, filename, err)
		}
		doc = *parsed
	default:
		return nil, specerr.Invalid(op, filename, fmt.Errorf("unknown format %q", format))
	}
	return &doc, nil
}

// hclDocument mirrors Document as HCL blocks:
//
//	node "P10" {
//	  field    = "power_class"
//	  requires = { cooling = ["P20", "P21"] }
//	}
//	exclusion "E1" {
//	  nodes  = ["P10", "P11"]
//	  reason = "incompatible power classes"
//	}
//	field "power_class" {
//	  nodes = ["P10", "P11"]
//	}
type hclDocument struct {
	Nodes      []hclNode      `hcl:"node,block"`
	Exclusions []hclExclusion `hcl:"exclusion,block"`
	Fields     []hclField     `hcl:"field,block"`
}

type hclNode struct {
	ID       string              `hcl:"id,label"`
	Field    string              `hcl:"field,optional"`
	Name     string              `hcl:"name,optional"`
	Default  string              `hcl:"default,optional"`
	Requires map[string][]string `hcl:"requires,optional"`
}

type hclExclusion struct {
	ID     string   `hcl:"id,label"`
	Nodes  []string `hcl:"nodes"`
	Type   string   `hcl:"type,optional"`
	Reason string   `hcl:"reason"`
	Prompt string   `hcl:"prompt,optional"`
}

type hclField struct {
	Name  string   `hcl:"name,label"`
	Nodes []string `hcl:"nodes"`
}

func parseHCL(filename string, data []byte) (*Document, error) {
	if !strings.HasSuffix(filename, ".hcl") {
		filename += ".hcl"
	}
	var parsed hclDocument
	if err := hclsimple.Decode(filename, data, nil, &parsed); err != nil {
		return nil, fmt.Errorf("decoding HCL: %w", err)
	}

	doc := &Document{
		Nodes:      make(map[string]NodeSpec, len(parsed.Nodes)),
		Exclusions: make(map[string]ExclusionSpec, len(parsed.Exclusions)),
		Fields:     make(map[string][]string, len(parsed.Fields)),
	}
	for _, n := range parsed.Nodes {
		if _, dup := doc.Nodes[n.ID]; dup {
			return nil, fmt.Errorf("node %q declared twice", n.ID)
		}
		doc.Nodes[n.ID] = NodeSpec{Field: n.Field, Name: n.Name, Default: n.Default, Requires: n.Requires}
	}
	for _, e := range parsed.Exclusions {
		if _, dup := doc.Exclusions[e.ID]; dup {
			return nil, fmt.Errorf("exclusion %q declared twice", e.ID)
		}
		doc.Exclusions[e.ID] = ExclusionSpec{Nodes: e.Nodes, Type: e.Type, Reason: e.Reason, Prompt: e.Prompt}
	}
	for _, f := range parsed.Fields {
		if _, dup := doc.Fields[f.Name]; dup {
			return nil, fmt.Errorf("field %q declared twice", f.Name)
		}
		doc.Fields[f.Name] = f.Nodes
	}
	return doc, nil
}
