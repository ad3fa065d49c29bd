package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Document is the serialized shape of a schema collection:
//
//	schemas:
//	  <table_name>:
//	    total_fields: <n>
//	    fields:
//	      "0": {name, type, alias?, python_name?, remote_name?, ...}
//	    sync_config: {...}
//	    metadata: {...}
//
// The integer field key is authoritative; ordering inside fields carries no
// meaning. Both YAML and JSON encodings are accepted.
type Document struct {
	Schemas map[string]DocumentTable `yaml:"schemas" json:"schemas"`
}

// DocumentTable is one table entry of a schema document.
type DocumentTable struct {
	TotalFields int                      `yaml:"total_fields,omitempty" json:"total_fields,omitempty"`
	Fields      map[string]DocumentField `yaml:"fields" json:"fields"`
	SyncConfig  *SyncConfig              `yaml:"sync_config,omitempty" json:"sync_config,omitempty"`
	Metadata    *TableMetadata           `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// DocumentField is one field entry keyed by its position string.
type DocumentField struct {
	Name         string        `yaml:"name" json:"name"`
	Type         string        `yaml:"type" json:"type"`
	Alias        string        `yaml:"alias,omitempty" json:"alias,omitempty"`
	PythonName   string        `yaml:"python_name,omitempty" json:"python_name,omitempty"`
	RemoteName   string        `yaml:"remote_name,omitempty" json:"remote_name,omitempty"`
	Description  string        `yaml:"description,omitempty" json:"description,omitempty"`
	Transformer  string        `yaml:"transformer,omitempty" json:"transformer,omitempty"`
	Constraints  *Constraints  `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	Relationship *Relationship `yaml:"relationships,omitempty" json:"relationships,omitempty"`
}

// LoadDocument parses a schema document and merges every table into the
// registry. JSON input is detected by its leading brace; everything else is
// parsed as YAML.
func LoadDocument(data []byte, reg *Registry) error {
	var doc Document

	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing schema document: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing schema document: %w", err)
		}
	}

	for name, entry := range doc.Schemas {
		ts, err := schemaFromDocument(name, entry)
		if err != nil {
			return err
		}
		reg.Register(ts)
	}
	return nil
}

// LoadDocumentFile reads path and merges it into the registry.
func LoadDocumentFile(path string, reg *Registry) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading schema document: %w", err)
	}
	return LoadDocument(data, reg)
}

func schemaFromDocument(name string, entry DocumentTable) (*TableSchema, error) {
	ts := &TableSchema{
		TableName:   name,
		Fields:      make(map[int]*FieldDefinition, len(entry.Fields)),
		TotalFields: entry.TotalFields,
		SyncConfig:  entry.SyncConfig,
		Metadata:    entry.Metadata,
	}

	for key, df := range entry.Fields {
		pos, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("table %s: field key %q is not an integer position", name, key)
		}
		if pos < 0 {
			return nil, fmt.Errorf("table %s: %w: %d", name, ErrNegativePosition, pos)
		}
		if _, dup := ts.Fields[pos]; dup {
			return nil, DuplicatePositionErr(name, pos)
		}

		t, err := ParseFieldType(df.Type)
		if err != nil {
			return nil, fmt.Errorf("table %s position %d: %w", name, pos, err)
		}
		if df.Name == "" {
			return nil, fmt.Errorf("table %s: %w: position %d", name, ErrEmptyName, pos)
		}
		if df.Transformer != "" {
			if _, ok := TransformerByName(df.Transformer); !ok {
				return nil, fmt.Errorf("table %s position %d: unknown transformer %q", name, pos, df.Transformer)
			}
		}

		ts.Fields[pos] = &FieldDefinition{
			Position:        pos,
			Name:            df.Name,
			Alias:           df.Alias,
			LocalName:       df.PythonName,
			RemoteName:      df.RemoteName,
			Type:            t,
			Description:     df.Description,
			TransformerName: df.Transformer,
			Constraints:     df.Constraints,
			Relationship:    df.Relationship,
		}
		if pos+1 > ts.TotalFields {
			ts.TotalFields = pos + 1
		}
	}

	if ts.SyncConfig != nil {
		if err := ts.SyncConfig.Validate(); err != nil {
			return nil, fmt.Errorf("table %s: %w", name, err)
		}
	}
	return ts, nil
}

// SaveDocument serializes every registered schema into the document shape
// as YAML.
func SaveDocument(reg *Registry) ([]byte, error) {
	doc := Document{Schemas: make(map[string]DocumentTable)}

	for _, name := range reg.ListTables() {
		ts, err := reg.Get(name)
		if err != nil {
			return nil, err
		}

		entry := DocumentTable{
			TotalFields: ts.TotalFields,
			Fields:      make(map[string]DocumentField, len(ts.Fields)),
			SyncConfig:  ts.SyncConfig,
			Metadata:    ts.Metadata,
		}
		for pos, f := range ts.Fields {
			entry.Fields[strconv.Itoa(pos)] = DocumentField{
				Name:         f.Name,
				Type:         string(f.Type),
				Alias:        f.Alias,
				PythonName:   f.LocalName,
				RemoteName:   f.RemoteName,
				Description:  f.Description,
				Transformer:  f.TransformerName,
				Constraints:  f.Constraints,
				Relationship: f.Relationship,
			}
		}
		doc.Schemas[name] = entry
	}

	return yaml.Marshal(doc)
}

// SaveDocumentFile writes the registry's schemas to path.
func SaveDocumentFile(path string, reg *Registry) error {
	data, err := SaveDocument(reg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
