package convert

import (
	"github.com/dnswlt/dpmap/internal/extras"
	"github.com/dnswlt/dpmap/internal/record"
	"github.com/samber/lo"
)

// CatalogResourceToPackage converts a Catalog resource into a Package resource.
// The input is not modified.
func CatalogResourceToPackage(in *record.Record) *record.Record {
	out := in.Clone()
	if out == nil {
		out = record.New()
	}
	for _, k := range resourceKeysToRemove {
		out.Delete(k)
	}
	// Catalog resources carry extension fields at top level and store
	// structured values as JSON strings.
	for k, v := range out.All() {
		out.Set(k, extras.Unjsonify(v))
	}
	applyRenames(out, resourceRenames)
	out.DropNulls()
	return out
}

// CatalogDatasetToPackage converts a Catalog dataset into a Package dataset.
// The input is not modified.
func CatalogDatasetToPackage(in *record.Record) *record.Record {
	out := in.Clone()
	if out == nil {
		out = record.New()
	}

	if out.Has(extras.Field) {
		for _, e := range extras.Entries(out) {
			out.Set(e.Key, extras.DecodeValue(e.Value))
		}
		out.Delete(extras.Field)
	}

	applyRenames(out, datasetRenames)

	if tags, ok := out.Value(fieldTags).([]any); ok {
		out.Set(fieldKeywords, tagNames(tags))
		out.Delete(fieldTags)
	}

	synthesizeContributors(out)

	if resources, ok := out.Value(fieldResources).([]any); ok {
		out.Set(fieldResources, lo.Map(resources, func(r any, _ int) any {
			if rec, ok := r.(*record.Record); ok {
				return CatalogResourceToPackage(rec)
			}
			return r
		}))
	}

	synthesizeLicenses(out, in)

	for _, k := range datasetKeysToRemove {
		out.Delete(k)
	}
	out.DropNulls()
	return out
}

func applyRenames(r *record.Record, table []rename) {
	for _, rn := range table {
		r.Rename(rn.from, rn.to)
	}
}

// tagNames maps Catalog tag objects to their names, keeping order.
// Elements without a string name are dropped.
func tagNames(tags []any) []any {
	return lo.FilterMap(tags, func(t any, _ int) (any, bool) {
		tag, ok := t.(*record.Record)
		if !ok {
			return nil, false
		}
		name, ok := tag.String(subName)
		return name, ok
	})
}

// synthesizeContributors builds contributors from the author and maintainer
// fields unless a non-empty contributors list is already present.
// The author and maintainer fields are always removed.
func synthesizeContributors(out *record.Record) {
	hasPerson := out.Value(fieldAuthor) != nil || out.Value(fieldMaintainer) != nil
	if !record.Truthy(out.Value(fieldContributors)) && hasPerson {
		if contributors := flatContributors(out); len(contributors) > 0 {
			out.Set(fieldContributors, contributors)
		}
	}
	for _, k := range []string{fieldAuthor, fieldAuthorEmail, fieldMaintainer, fieldMaintainerEmail} {
		out.Delete(k)
	}
}

// flatContributors builds the contributors list for the author and
// maintainer fields of r, author first.
func flatContributors(r *record.Record) []any {
	var contributors []any
	if c := contributor(r, fieldAuthor, fieldAuthorEmail, roleAuthor); c != nil {
		contributors = append(contributors, c)
	}
	if c := contributor(r, fieldMaintainer, fieldMaintainerEmail, roleMaintainer); c != nil {
		contributors = append(contributors, c)
	}
	return contributors
}

func contributor(r *record.Record, titleKey, emailKey, role string) *record.Record {
	title := r.Value(titleKey)
	if !record.Truthy(title) {
		return nil
	}
	c := record.New()
	c.Set(subTitle, title)
	c.Set(subRole, role)
	if email := r.Value(emailKey); email != nil {
		c.Set(subEmail, email)
	}
	return c
}

// synthesizeLicenses replaces license_id, license_title and license_url with
// a licenses list, then appends the licenses archived in the extras of the
// original input that are not yet present.
func synthesizeLicenses(out, in *record.Record) {
	var licenses []any
	primary := record.New()
	for _, f := range []struct{ from, to string }{
		{fieldLicenseID, subName},
		{fieldLicenseTitle, subTitle},
		{fieldLicenseURL, subPath},
	} {
		if v := out.Value(f.from); v != nil {
			primary.Set(f.to, v)
		}
	}
	hasPrimary := primary.Len() > 0
	if hasPrimary {
		licenses = append(licenses, primary)
	}
	out.Delete(fieldLicenseID)
	out.Delete(fieldLicenseTitle)
	out.Delete(fieldLicenseURL)

	archived, found := extras.Lookup(in, fieldLicenses)
	if !found {
		if hasPrimary {
			out.Set(fieldLicenses, licenses)
		}
		return
	}
	for _, l := range archivedLicenses(archived) {
		norm := normalizeLicense(l)
		dup := lo.ContainsBy(licenses, func(x any) bool {
			return record.ValueEqual(x, norm)
		})
		if !dup {
			licenses = append(licenses, norm)
		}
	}
	if licenses != nil {
		out.Set(fieldLicenses, licenses)
	}
}

// archivedLicenses decodes the value of a "licenses" extras entry.
// It accepts a JSON list of license objects or an object with a
// "licenses" list. Anything else yields no licenses.
func archivedLicenses(v any) []*record.Record {
	v = extras.DecodeValue(v)
	if obj, ok := v.(*record.Record); ok {
		v = obj.Value(fieldLicenses)
	}
	list, _ := v.([]any)
	var result []*record.Record
	for _, e := range list {
		if l, ok := e.(*record.Record); ok {
			result = append(result, l)
		}
	}
	return result
}

func normalizeLicense(l *record.Record) *record.Record {
	norm := record.New()
	for _, k := range []string{subName, subTitle, subPath} {
		if v, ok := l.Get(k); ok {
			norm.Set(k, record.CloneValue(v))
		}
	}
	return norm
}
