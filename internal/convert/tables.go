package convert

// rename is a single entry of a key rename table.
type rename struct {
	from, to string
}

func invert(table []rename) []rename {
	inv := make([]rename, len(table))
	for i, r := range table {
		inv[i] = rename{from: r.to, to: r.from}
	}
	return inv
}

// The tables below are never modified after initialization.
var (
	// Catalog-internal bookkeeping keys of a resource.
	resourceKeysToRemove = []string{
		"package_id",
		"position",
		"datastore_active",
		"state",
	}

	datasetKeysToRemove = []string{
		"state",
	}

	resourceRenames = []rename{
		{"size", "bytes"},
		{"mimetype", "mediatype"},
		{"url", "path"},
	}
	resourceRenamesInv = invert(resourceRenames)

	datasetRenames = []rename{
		{"notes", "description"},
		{"url", "homepage"},
	}
	datasetRenamesInv = invert(datasetRenames)

	// Keys a Catalog dataset may carry at top level. Everything else is
	// moved into extras by PackageToCatalog.
	catalogDatasetKeys = map[string]bool{
		"author":                   true,
		"author_email":             true,
		"extras":                   true,
		"groups":                   true,
		"license_id":               true,
		"license_title":            true,
		"license_url":              true,
		"maintainer":               true,
		"maintainer_email":         true,
		"name":                     true,
		"notes":                    true,
		"owner_org":                true,
		"private":                  true,
		"relationships_as_object":  true,
		"relationships_as_subject": true,
		"resources":                true,
		"state":                    true,
		"tags":                     true,
		"title":                    true,
		"type":                     true,
		"url":                      true,
		"version":                  true,
	}
)

// Catalog field names.
const (
	fieldAuthor          = "author"
	fieldAuthorEmail     = "author_email"
	fieldMaintainer      = "maintainer"
	fieldMaintainerEmail = "maintainer_email"
	fieldLicenseID       = "license_id"
	fieldLicenseTitle    = "license_title"
	fieldLicenseURL      = "license_url"
	fieldTags            = "tags"
	fieldURL             = "url"
	fieldResources       = "resources"
)

// Package field names.
const (
	fieldLicenses     = "licenses"
	fieldSources      = "sources"
	fieldContributors = "contributors"
	fieldKeywords     = "keywords"
)

// Sub-object field names shared by licenses, sources and contributors.
const (
	subName  = "name"
	subType  = "type"
	subTitle = "title"
	subPath  = "path"
	subEmail = "email"
	subRole  = "role"
)

const (
	roleAuthor     = "author"
	roleMaintainer = "maintainer"
)

// IsCatalogDatasetKey reports whether key may appear at the top level of a
// Catalog dataset.
func IsCatalogDatasetKey(key string) bool {
	return catalogDatasetKeys[key]
}
