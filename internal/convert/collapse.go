package convert

import (
	"fmt"

	"github.com/dnswlt/dpmap/internal/extras"
	"github.com/dnswlt/dpmap/internal/record"
)

// CollapseResult describes how a list of structured sub-objects (licenses,
// sources or contributors) was reduced to flat Catalog fields.
type CollapseResult int

const (
	// CollapseNone means the list was absent or empty; nothing was collapsed.
	CollapseNone CollapseResult = iota
	// CollapseExact means the flat fields carry all information of the list.
	CollapseExact
	// CollapseWithOverflow means the first element was mapped to flat fields
	// and the full list was archived in extras.
	CollapseWithOverflow
)

func (c CollapseResult) String() string {
	switch c {
	case CollapseNone:
		return "none"
	case CollapseExact:
		return "exact"
	case CollapseWithOverflow:
		return "with-overflow"
	}
	return fmt.Sprintf("CollapseResult(%d)", int(c))
}

// CollapseReport records the collapse decisions of one PackageToCatalog call.
type CollapseReport struct {
	Licenses     CollapseResult
	Sources      CollapseResult
	Contributors CollapseResult
}

// Lossless reports whether no list had to be archived in extras.
func (r CollapseReport) Lossless() bool {
	return r.Licenses != CollapseWithOverflow &&
		r.Sources != CollapseWithOverflow &&
		r.Contributors != CollapseWithOverflow
}

// flatField maps one field of the first list element to a Catalog field.
type flatField struct {
	sub    []string // candidate sub-object fields, first present wins
	target string
}

// collapser describes how one Package list is reduced to Catalog fields.
type collapser struct {
	field  string
	fields []flatField
}

var (
	licensesCollapser = collapser{
		field: fieldLicenses,
		fields: []flatField{
			{sub: []string{subName, subType}, target: fieldLicenseID},
			{sub: []string{subTitle}, target: fieldLicenseTitle},
			{sub: []string{subPath}, target: fieldLicenseURL},
		},
	}
	sourcesCollapser = collapser{
		field: fieldSources,
		fields: []flatField{
			{sub: []string{subTitle}, target: fieldAuthor},
			{sub: []string{subEmail}, target: fieldAuthorEmail},
			{sub: []string{subPath}, target: fieldURL},
		},
	}
)

// collapse maps the first element of the list stored under c.field to flat
// fields of out and archives the whole list in extras if it has more than
// one element. The list field is deleted.
// Lists that are absent, empty or not lists are left untouched.
func (c collapser) collapse(out *record.Record) CollapseResult {
	list, ok := out.Value(c.field).([]any)
	if !ok || len(list) == 0 {
		return CollapseNone
	}
	first, _ := list[0].(*record.Record)
	for _, f := range c.fields {
		for _, sub := range f.sub {
			if v := first.Value(sub); record.Truthy(v) {
				out.Set(f.target, v)
				break
			}
		}
	}
	out.Delete(c.field)

	if len(list) > 1 || first == nil {
		extras.Append(out, c.field, extras.EncodeValue(list))
		return CollapseWithOverflow
	}
	return CollapseExact
}

// collapseContributors maps the first author and the first maintainer among
// the contributors to the flat author and maintainer fields. Contributors
// without a role count as authors, any other role as maintainer.
//
// The list is archived in extras unless CatalogDatasetToPackage rebuilds it
// from those flat fields. If sources already filled the author fields with a
// different person, the author fields are left alone and the sources list
// is archived as well, because CatalogDatasetToPackage turns the flat author
// into a contributor and would otherwise lose the source.
func collapseContributors(out *record.Record, sources any, report *CollapseReport) CollapseResult {
	list, ok := out.Value(fieldContributors).([]any)
	if !ok || len(list) == 0 {
		return CollapseNone
	}
	out.Delete(fieldContributors)

	var author, maintainer *record.Record
	for _, e := range list {
		c, ok := e.(*record.Record)
		if !ok {
			continue
		}
		switch role, _ := c.String(subRole); role {
		case "", roleAuthor:
			if author == nil {
				author = c
			}
		default:
			if maintainer == nil {
				maintainer = c
			}
		}
	}

	// own holds only the flat fields taken from the contributors.
	own := record.New()
	conflict := false
	if author != nil {
		setPerson(own, author, fieldAuthor, fieldAuthorEmail)
		if report.Sources != CollapseNone && !samePerson(own, out, fieldAuthor, fieldAuthorEmail) {
			conflict = true
		} else {
			setPerson(out, author, fieldAuthor, fieldAuthorEmail)
		}
	}
	if maintainer != nil {
		setPerson(own, maintainer, fieldMaintainer, fieldMaintainerEmail)
		setPerson(out, maintainer, fieldMaintainer, fieldMaintainerEmail)
	}

	if !conflict && record.ValueEqual(list, flatContributors(own)) {
		return CollapseExact
	}
	if conflict && report.Sources == CollapseExact {
		extras.Append(out, fieldSources, extras.EncodeValue(sources))
		report.Sources = CollapseWithOverflow
	}
	extras.Append(out, fieldContributors, extras.EncodeValue(list))
	return CollapseWithOverflow
}

func setPerson(out, c *record.Record, titleKey, emailKey string) {
	if v := c.Value(subTitle); record.Truthy(v) {
		out.Set(titleKey, v)
	}
	if v := c.Value(subEmail); record.Truthy(v) {
		out.Set(emailKey, v)
	}
}

func samePerson(a, b *record.Record, titleKey, emailKey string) bool {
	return record.ValueEqual(a.Value(titleKey), b.Value(titleKey)) &&
		record.ValueEqual(a.Value(emailKey), b.Value(emailKey))
}
