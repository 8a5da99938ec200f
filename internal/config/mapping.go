package config

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"fuelimport/internal/domain"
	"fuelimport/internal/mapper"
)

// ColumnMapping resolves the job's column mapping from MappingFile or, when
// that is empty, from the inline Mapping block.
func (j Job) ColumnMapping() (domain.ColumnMapping, error) {
	if j.MappingFile != "" {
		return mapper.LoadMappingFile(j.MappingFile)
	}
	if len(j.Mapping) == 0 {
		return nil, errors.New("no column mapping; set mapping or mapping_file")
	}
	b, err := yaml.Marshal(j.Mapping)
	if err != nil {
		return nil, fmt.Errorf("encode inline mapping: %w", err)
	}
	return mapper.ParseMapping(b)
}
