package mapper

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"fuelimport/internal/domain"
)

// LoadMappingFile reads a column mapping from a YAML or JSON file.
func LoadMappingFile(path string) (domain.ColumnMapping, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}
	m, err := ParseMapping(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ParseMapping decodes a mapping document. Each field is either a bare column
// name or an object with column, date_format and decimal_separator. The
// fields may sit at the root or under a top-level "mapping" key:
//
//	vehicle_id: Placa
//	refuel_date: {column: Data, date_format: DD/MM/YYYY}
//	liters: {column: Litros, decimal_separator: ","}
func ParseMapping(b []byte) (domain.ColumnMapping, error) {
	var root map[string]yaml.Node
	if err := yaml.Unmarshal(b, &root); err != nil {
		return nil, fmt.Errorf("decode mapping: %w", err)
	}
	if inner, ok := root["mapping"]; ok && inner.Kind == yaml.MappingNode {
		root = nil
		if err := inner.Decode(&root); err != nil {
			return nil, fmt.Errorf("decode mapping: %w", err)
		}
	}

	m := make(domain.ColumnMapping, len(root))
	for field, node := range root {
		var spec domain.ColumnSpec
		switch node.Kind {
		case yaml.ScalarNode:
			spec.Column = node.Value
		case yaml.MappingNode:
			if err := node.Decode(&spec); err != nil {
				return nil, fmt.Errorf("field %q: %w", field, err)
			}
		default:
			return nil, fmt.Errorf("field %q: expected a column name or an object", field)
		}
		m[domain.Field(field)] = spec
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
