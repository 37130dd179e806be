package convert

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dnswlt/dpmap/internal/record"
	"github.com/google/go-cmp/cmp"
)

func readRecord(t *testing.T, name string) *record.Record {
	t.Helper()
	bs, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to read test data: %v", err)
	}
	r, err := record.Parse(bs)
	if err != nil {
		t.Fatalf("failed to parse %s: %v", name, err)
	}
	return r
}

// diffRecords compares records by content, ignoring key order.
func diffRecords(want, got *record.Record) string {
	return cmp.Diff(want.ToMap(), got.ToMap())
}

func assertNoNulls(t *testing.T, r *record.Record) {
	t.Helper()
	for k, v := range r.All() {
		if v == nil {
			t.Errorf("output has null-valued key %q", k)
		}
	}
}

func TestCatalogResourceToPackage_Fixture(t *testing.T) {
	in := readRecord(t, "catalog_resource.json")
	want := readRecord(t, "package_resource.json")

	got := CatalogResourceToPackage(in)
	if diff := diffRecords(want, got); diff != "" {
		t.Errorf("CatalogResourceToPackage() mismatch (-want +got):\n%s", diff)
	}
	assertNoNulls(t, got)
}

func TestCatalogResourceToPackage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "values are unjsonified",
			in: `{
				"schema": "{\"fields\": [{\"name\": \"abc\", \"type\": \"string\"}]}",
				"otherval": " [1, 2] ",
				"x": "{'abc': 1"
			}`,
			want: `{
				"schema": {"fields": [{"name": "abc", "type": "string"}]},
				"otherval": [1, 2],
				"x": "{'abc': 1"
			}`,
		},
		{
			name: "plain strings are kept",
			in:   `{"x": "hello world", "y": "1.3", "z": "true"}`,
			want: `{"x": "hello world", "y": "1.3", "z": "true"}`,
		},
		{
			name: "bookkeeping keys are removed",
			in:   `{"package_id": "xxx", "position": 2, "datastore_active": true, "state": "active"}`,
			want: `{}`,
		},
		{
			name: "keys are renamed",
			in:   `{"url": "http://www.somewhere.com/data.csv", "size": 110, "mimetype": "text/csv"}`,
			want: `{"path": "http://www.somewhere.com/data.csv", "bytes": 110, "mediatype": "text/csv"}`,
		},
		{
			name: "path is set for uploaded resources",
			in:   `{"url": "http://www.somewhere.com/data.csv", "url_type": "upload"}`,
			want: `{"path": "http://www.somewhere.com/data.csv", "url_type": "upload"}`,
		},
		{
			name: "unknown keys pass through",
			in: `{
				"description": "GDPs list",
				"format": "CSV",
				"hash": "e785c0883d7a104330e69aee73d4f235",
				"schema": {"fields": [{"name": "id", "type": "integer"}]},
				"adfajka": "aaaa",
				"1dafak": "abbbb"
			}`,
			want: `{
				"description": "GDPs list",
				"format": "CSV",
				"hash": "e785c0883d7a104330e69aee73d4f235",
				"schema": {"fields": [{"name": "id", "type": "integer"}]},
				"adfajka": "aaaa",
				"1dafak": "abbbb"
			}`,
		},
		{
			name: "nulls are stripped",
			in:   `{"abc": "xxx", "size": null, "xyz": null}`,
			want: `{"abc": "xxx"}`,
		},
		{
			name: "renamed key carries parsed value",
			in:   `{"url": "[\"a\", \"b\"]"}`,
			want: `{"path": ["a", "b"]}`,
		},
		{
			name: "removed keys are never parsed",
			in:   `{"state": "{broken", "package_id": "{\"a\": 1}"}`,
			want: `{}`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CatalogResourceToPackage(record.MustParse(tc.in))
			if diff := diffRecords(record.MustParse(tc.want), got); diff != "" {
				t.Errorf("CatalogResourceToPackage() mismatch (-want +got):\n%s", diff)
			}
			assertNoNulls(t, got)
		})
	}
}

func TestCatalogResourceToPackage_BookkeepingKeysIrrelevant(t *testing.T) {
	with := record.MustParse(`{"name": "r", "url": "http://x", "package_id": "p", "position": 3, "datastore_active": true, "state": "deleted"}`)
	without := record.MustParse(`{"name": "r", "url": "http://x"}`)
	if diff := diffRecords(CatalogResourceToPackage(without), CatalogResourceToPackage(with)); diff != "" {
		t.Errorf("bookkeeping keys changed the output (-without +with):\n%s", diff)
	}
}

func TestCatalogResourceToPackage_KeepsInput(t *testing.T) {
	in := record.MustParse(`{"url": "http://x", "schema": "{\"fields\": []}", "state": "active"}`)
	before := in.Clone()
	CatalogResourceToPackage(in)
	if diff := diffRecords(before, in); diff != "" {
		t.Errorf("input was modified (-before +after):\n%s", diff)
	}
}

func TestCatalogDatasetToPackage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "extras are expanded",
			in: `{"extras": [
				{"key": "title_cn", "value": "國內生產總值"},
				{"key": "years", "value": "[2015, 2016]"},
				{"key": "last_year", "value": 2016},
				{"key": "location", "value": "{\"country\": \"China\"}"}
			]}`,
			want: `{
				"title_cn": "國內生產總值",
				"years": [2015, 2016],
				"last_year": 2016,
				"location": {"country": "China"}
			}`,
		},
		{
			name: "all extra values are unjsonified",
			in: `{"extras": [
				{"key": "location", "value": "{\"country\": {\"China\": {\"population\": \"1233214331\", \"capital\": \"Beijing\"}}}"},
				{"key": "numbers", "value": "[[[1, 2, 3], [2, 4, 5]], [[7, 6, 0]]]"}
			]}`,
			want: `{
				"location": {"country": {"China": {"population": "1233214331", "capital": "Beijing"}}},
				"numbers": [[[1, 2, 3], [2, 4, 5]], [[7, 6, 0]]]
			}`,
		},
		{
			name: "malformed extra values are kept",
			in:   `{"extras": [{"key": "broken", "value": "{\"a\": "}, {"key": "custom", "value": "hello"}]}`,
			want: `{"broken": "{\"a\": ", "custom": "hello"}`,
		},
		{
			name: "empty extras are removed",
			in:   `{"name": "gdp", "extras": []}`,
			want: `{"name": "gdp"}`,
		},
		{
			name: "license id only",
			in:   `{"license_id": "odc-odbl"}`,
			want: `{"licenses": [{"name": "odc-odbl"}]}`,
		},
		{
			name: "all license fields",
			in:   `{"license_id": "cc-by", "license_title": "CC-BY", "license_url": "http://x"}`,
			want: `{"licenses": [{"name": "cc-by", "title": "CC-BY", "path": "http://x"}]}`,
		},
		{
			name: "null license fields",
			in:   `{"license_id": "cc-by", "license_title": null, "license_url": null}`,
			want: `{"licenses": [{"name": "cc-by"}]}`,
		},
		{
			name: "licenses in extras are appended without duplicates",
			in: `{
				"license_id": "odc-odbl",
				"license_title": "Open Data Commons Open Database License",
				"license_url": "https://opendatacommons.org/licenses/odbl/1-0/index.html",
				"extras": [{"key": "licenses", "value": "[{\"name\": \"odc-odbl\", \"title\": \"Open Data Commons Open Database License\", \"path\": \"https://opendatacommons.org/licenses/odbl/1-0/index.html\"}, {\"name\": \"odc-by\", \"title\": \"Open Data Commons Attribution License\", \"path\": \"https://opendatacommons.org/licenses/by/1-0/index.html\", \"extra\": \"dropped\"}]"}]
			}`,
			want: `{"licenses": [
				{"name": "odc-odbl", "title": "Open Data Commons Open Database License", "path": "https://opendatacommons.org/licenses/odbl/1-0/index.html"},
				{"name": "odc-by", "title": "Open Data Commons Attribution License", "path": "https://opendatacommons.org/licenses/by/1-0/index.html"}
			]}`,
		},
		{
			name: "licenses in extras wrapped in an object",
			in: `{
				"license_id": "cc-by",
				"extras": [{"key": "licenses", "value": "{\"licenses\": [{\"name\": \"cc-zero\"}, {\"name\": \"cc-by\"}]}"}]
			}`,
			want: `{"licenses": [{"name": "cc-by"}, {"name": "cc-zero"}]}`,
		},
		{
			name: "licenses in extras without license fields",
			in:   `{"extras": [{"key": "licenses", "value": "[{\"name\": \"a\", \"type\": \"x\"}, {\"name\": \"a\"}]"}]}`,
			want: `{"licenses": [{"name": "a"}]}`,
		},
		{
			name: "malformed licenses in extras",
			in:   `{"license_id": "cc-by", "extras": [{"key": "licenses", "value": "[{\"name\": "}]}`,
			want: `{"licenses": [{"name": "cc-by"}]}`,
		},
		{
			name: "keys are passed through",
			in:   `{"name": "gdp", "title": "Countries GDP", "version": "1.0", "xxx": "aldka"}`,
			want: `{"name": "gdp", "title": "Countries GDP", "version": "1.0", "xxx": "aldka"}`,
		},
		{
			name: "key mappings",
			in:   `{"notes": "Country, regional and world GDP", "url": "https://datopian.com"}`,
			want: `{"description": "Country, regional and world GDP", "homepage": "https://datopian.com"}`,
		},
		{
			name: "author",
			in:   `{"author": "A", "author_email": "a@x.com"}`,
			want: `{"contributors": [{"title": "A", "role": "author", "email": "a@x.com"}]}`,
		},
		{
			name: "author and maintainer",
			in: `{
				"author": "World Bank and OECD",
				"author_email": "someone@worldbank.org",
				"maintainer": "Datopian",
				"maintainer_email": "helloxxx@datopian.com"
			}`,
			want: `{"contributors": [
				{"title": "World Bank and OECD", "email": "someone@worldbank.org", "role": "author"},
				{"title": "Datopian", "email": "helloxxx@datopian.com", "role": "maintainer"}
			]}`,
		},
		{
			name: "maintainer without email",
			in:   `{"author": "", "maintainer": "Datopian", "maintainer_email": null}`,
			want: `{"contributors": [{"title": "Datopian", "role": "maintainer"}]}`,
		},
		{
			name: "existing contributors win",
			in:   `{"contributors": [{"title": "Datopians"}], "author": "World Bank and OECD"}`,
			want: `{"contributors": [{"title": "Datopians"}]}`,
		},
		{
			name: "empty existing contributors are replaced",
			in:   `{"contributors": [], "author": "World Bank and OECD"}`,
			want: `{"contributors": [{"title": "World Bank and OECD", "role": "author"}]}`,
		},
		{
			name: "null author and maintainer",
			in:   `{"name": "x", "author": null, "author_email": null, "maintainer": null, "maintainer_email": null}`,
			want: `{"name": "x"}`,
		},
		{
			name: "tags become keywords",
			in: `{"tags": [
				{"display_name": "economy", "id": "9d602a79", "name": "economy", "state": "active"},
				{"display_name": "worldbank", "id": "3ccc2e3b", "name": "worldbank", "state": "active"}
			]}`,
			want: `{"keywords": ["economy", "worldbank"]}`,
		},
		{
			name: "state is removed",
			in:   `{"state": "active"}`,
			want: `{}`,
		},
		{
			name: "nulls are stripped",
			in:   `{"id": "12312", "title": "title here", "format": null}`,
			want: `{"id": "12312", "title": "title here"}`,
		},
		{
			name: "null extras are stripped",
			in:   `{"extras": [{"key": "x", "value": "null"}, {"key": "y", "value": null}]}`,
			want: `{}`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CatalogDatasetToPackage(record.MustParse(tc.in))
			if diff := diffRecords(record.MustParse(tc.want), got); diff != "" {
				t.Errorf("CatalogDatasetToPackage() mismatch (-want +got):\n%s", diff)
			}
			assertNoNulls(t, got)
		})
	}
}

func TestCatalogDatasetToPackage_Resources(t *testing.T) {
	in := record.MustParse(`{
		"name": "gdp",
		"resources": [
			{"id": "1234", "name": "data.csv", "url": "http://someplace.com/data.csv", "position": 0},
			{"id": "12345", "name": "data2.csv", "url": "http://someotherplace.com/data2.csv", "position": 1}
		]
	}`)
	want := record.MustParse(`{
		"name": "gdp",
		"resources": [
			{"id": "1234", "name": "data.csv", "path": "http://someplace.com/data.csv"},
			{"id": "12345", "name": "data2.csv", "path": "http://someotherplace.com/data2.csv"}
		]
	}`)
	got := CatalogDatasetToPackage(in)
	if diff := diffRecords(want, got); diff != "" {
		t.Errorf("CatalogDatasetToPackage() mismatch (-want +got):\n%s", diff)
	}
}

func TestCatalogDatasetToPackage_Fixture(t *testing.T) {
	in := readRecord(t, "full_catalog_package.json")
	got := CatalogDatasetToPackage(in)

	want := record.MustParse(`{
		"creator_user_id": "b4c7a63f-1f5f-4ca6-8ab4-3b0b6b3d1f4e",
		"groups": [],
		"id": "7d7a3a2f-2f67-4e45-ab57-0c1d3e7a0d5c",
		"isopen": true,
		"metadata_created": "2020-03-31T12:00:00.000000",
		"name": "gdp",
		"num_resources": 1,
		"num_tags": 2,
		"organization": {
			"id": "6b3c3a5e-8d2f-4c2a-9a8b-1e2f3a4b5c6d",
			"name": "datopian",
			"title": "Datopian",
			"is_organization": true
		},
		"owner_org": "6b3c3a5e-8d2f-4c2a-9a8b-1e2f3a4b5c6d",
		"private": false,
		"resources": [{
			"created": "2020-03-31T12:00:01.000000",
			"description": "GDP per country and year",
			"format": "CSV",
			"hash": "",
			"id": "1234",
			"name": "data.csv",
			"schema": {"fields": [{"name": "year", "type": "integer"}, {"name": "value", "type": "number"}]},
			"bytes": 1024,
			"mediatype": "text/csv",
			"path": "http://someplace.com/data.csv"
		}],
		"title": "Country, Regional and World GDP",
		"type": "dataset",
		"version": "1.0",
		"title_cn": "國內生產總值",
		"years": [2015, 2016],
		"last_year": 2016,
		"location": {"country": "China"},
		"description": "Country, regional and world GDP in current USD.",
		"homepage": "https://datahub.io/core/gdp",
		"keywords": ["economy", "World Bank"],
		"contributors": [
			{"title": "World Bank and OECD", "role": "author", "email": "someone@worldbank.org"},
			{"title": "Datopian", "role": "maintainer"}
		],
		"licenses": [{
			"name": "odc-odbl",
			"title": "Open Data Commons Open Database License (ODbL)",
			"path": "http://www.opendefinition.org/licenses/odc-odbl"
		}]
	}`)
	if diff := diffRecords(want, got); diff != "" {
		t.Errorf("CatalogDatasetToPackage() mismatch (-want +got):\n%s", diff)
	}
	assertNoNulls(t, got)
}

func TestCatalogDatasetToPackage_KeepsInput(t *testing.T) {
	in := readRecord(t, "full_catalog_package.json")
	before := in.Clone()
	CatalogDatasetToPackage(in)
	if diff := diffRecords(before, in); diff != "" {
		t.Errorf("input was modified (-before +after):\n%s", diff)
	}
}
