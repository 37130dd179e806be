// Package convert maps dataset and resource records between the Catalog
// schema (flat fields plus an extras list) and the Package schema (structured
// licenses, contributors, sources and keywords).
//
// All conversions are pure functions: they never modify their input and
// never fail. Malformed JSON found in string fields is kept as a string.
package convert

import (
	"fmt"

	"github.com/dnswlt/dpmap/internal/record"
)

// Direction is the target schema of a conversion.
type Direction int

const (
	ToPackage Direction = iota
	ToCatalog
)

func (d Direction) String() string {
	switch d {
	case ToPackage:
		return "package"
	case ToCatalog:
		return "catalog"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// ParseDirection parses "package" or "catalog".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "package":
		return ToPackage, nil
	case "catalog":
		return ToCatalog, nil
	}
	return 0, fmt.Errorf("invalid direction %q (want package or catalog)", s)
}

// Kind is the kind of record being converted.
type Kind int

const (
	Dataset Kind = iota
	Resource
)

func (k Kind) String() string {
	switch k {
	case Dataset:
		return "dataset"
	case Resource:
		return "resource"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind parses "dataset" or "resource".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "dataset":
		return Dataset, nil
	case "resource":
		return Resource, nil
	}
	return 0, fmt.Errorf("invalid kind %q (want dataset or resource)", s)
}

// Converter converts a single record.
type Converter func(*record.Record) *record.Record

// For returns the converter for the given direction and kind.
func For(d Direction, k Kind) (Converter, error) {
	switch {
	case d == ToPackage && k == Dataset:
		return CatalogDatasetToPackage, nil
	case d == ToPackage && k == Resource:
		return CatalogResourceToPackage, nil
	case d == ToCatalog && k == Dataset:
		return PackageToCatalog, nil
	case d == ToCatalog && k == Resource:
		return PackageResourceToCatalog, nil
	}
	return nil, fmt.Errorf("no converter for %s %s", k, d)
}
