package validator

import (
	"fmt"
	"strconv"

	"github.com/zeebo/xxh3"

	"fuelimport/internal/domain"
)

func keyHash(k domain.NaturalKey) uint64 {
	b := make([]byte, 0, len(k.VehicleID)+32)
	b = append(b, k.VehicleID...)
	b = append(b, 0)
	b = append(b, k.RefuelDate...)
	b = append(b, 0)
	b = strconv.AppendInt(b, k.OdometerReading, 10)
	return xxh3.Hash(b)
}

// MarkDuplicates splits records, which must be in source row order, into the
// first occurrence of each natural key and the later repeats. Repeats carry a
// DuplicateInBatch warning naming the row they duplicate.
func MarkDuplicates(records []domain.ValidatedRecord) (kept, dups []domain.ValidatedRecord) {
	type seen struct {
		key domain.NaturalKey
		row int
	}
	index := make(map[uint64][]seen, len(records))
	kept = make([]domain.ValidatedRecord, 0, len(records))

outer:
	for _, r := range records {
		k := r.Key()
		h := keyHash(k)
		for _, s := range index[h] {
			if s.key == k {
				r.Warnings = append(append([]domain.Diagnostic(nil), r.Warnings...), domain.Diagnostic{
					Field:    domain.FieldOdometerReading,
					Kind:     domain.KindDuplicateInBatch,
					RawValue: strconv.FormatInt(k.OdometerReading, 10),
					Detail:   fmt.Sprintf("same vehicle, date and odometer as row %d", s.row),
				})
				dups = append(dups, r)
				continue outer
			}
		}
		index[h] = append(index[h], seen{key: k, row: r.SourceRowIndex})
		kept = append(kept, r)
	}
	return kept, dups
}
