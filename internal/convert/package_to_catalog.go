package convert

import (
	"strings"

	"github.com/dnswlt/dpmap/internal/extras"
	"github.com/dnswlt/dpmap/internal/record"
	"github.com/gosimple/slug"
	"github.com/samber/lo"
)

// PackageToCatalog converts a Package dataset into a Catalog dataset.
// The input is not modified.
func PackageToCatalog(in *record.Record) *record.Record {
	out, _ := PackageToCatalogWithReport(in)
	return out
}

// PackageToCatalogWithReport is like PackageToCatalog and also reports how
// licenses, sources and contributors were collapsed.
func PackageToCatalogWithReport(in *record.Record) (*record.Record, CollapseReport) {
	out := in.Clone()
	if out == nil {
		out = record.New()
	}
	// Null fields must not be archived in extras.
	out.DropNulls()

	applyRenames(out, datasetRenamesInv)

	// Collapsing must precede the sweep below, otherwise the lists would
	// end up in extras a second time.
	var report CollapseReport
	sources := out.Value(fieldSources)
	report.Licenses = licensesCollapser.collapse(out)
	report.Sources = sourcesCollapser.collapse(out)
	report.Contributors = collapseContributors(out, sources, &report)

	if keywords, ok := out.Value(fieldKeywords).([]any); ok {
		out.Set(fieldTags, keywordTags(keywords))
		out.Delete(fieldKeywords)
	}

	if resources, ok := out.Value(fieldResources).([]any); ok {
		out.Set(fieldResources, lo.Map(resources, func(r any, _ int) any {
			if rec, ok := r.(*record.Record); ok {
				return PackageResourceToCatalog(rec)
			}
			return r
		}))
	}

	for _, k := range out.Keys() {
		if IsCatalogDatasetKey(k) {
			continue
		}
		extras.Append(out, k, extras.EncodeValue(out.Value(k)))
		out.Delete(k)
	}

	out.DropNulls()
	return out, report
}

// PackageResourceToCatalog converts a Package resource into a Catalog resource.
// Unknown fields stay at top level, where Catalog resources keep their
// extension fields. Structured values are not re-encoded as JSON strings.
// The input is not modified.
func PackageResourceToCatalog(in *record.Record) *record.Record {
	out := in.Clone()
	if out == nil {
		out = record.New()
	}
	applyRenames(out, resourceRenamesInv)
	out.DropNulls()
	return out
}

// keywordTags maps keywords to Catalog tag objects with slugified names.
// Non-string keywords are dropped.
func keywordTags(keywords []any) []any {
	return lo.FilterMap(keywords, func(k any, _ int) (any, bool) {
		s, ok := k.(string)
		if !ok {
			return nil, false
		}
		tag := record.New()
		tag.Set(subName, Slugify(s))
		return tag, true
	})
}

// Slugify maps text to a lowercase, hyphen-separated, URL-safe token.
// Non-ASCII characters are transliterated.
func Slugify(text string) string {
	return strings.ToLower(slug.Make(text))
}
