package gitclient

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/go-cmp/cmp"
)

// createTestRepo initializes a git repo in a temp dir and returns its path.
// Structure:
// v1.0.0 (tag)
//   - gdp.json ({"name": "gdp-v1"})
//
// v2.0.0 (tag), master
//   - gdp.json ({"name": "gdp-v2"})
//   - datasets/population.json
//
// feature/more-data (branch)
//   - datasets/trade.json
func createTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("Failed to init git repo: %v", err)
	}
	w, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Failed to get worktree: %v", err)
	}

	write := func(name, content string) {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("Failed to create dir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	commit := func(msg string) {
		if _, err := w.Add("."); err != nil {
			t.Fatalf("Failed to add files: %v", err)
		}
		_, err := w.Commit(msg, &git.CommitOptions{
			Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
		})
		if err != nil {
			t.Fatalf("Failed to commit: %v", err)
		}
	}
	tag := func(name string) {
		head, err := repo.Head()
		if err != nil {
			t.Fatalf("Failed to get HEAD: %v", err)
		}
		if _, err := repo.CreateTag(name, head.Hash(), nil); err != nil {
			t.Fatalf("Failed to create tag %s: %v", name, err)
		}
	}

	write("gdp.json", `{"name": "gdp-v1"}`)
	commit("Initial commit")
	tag("v1.0.0")

	write("gdp.json", `{"name": "gdp-v2"}`)
	write("datasets/population.json", `{"name": "population"}`)
	commit("Add population")
	tag("v2.0.0")

	err = w.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName("feature/more-data"),
		Create: true,
	})
	if err != nil {
		t.Fatalf("Failed to checkout branch: %v", err)
	}
	write("datasets/trade.json", `{"name": "trade"}`)
	commit("Add trade")

	err = w.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName("master")})
	if err != nil {
		t.Fatalf("Failed to checkout master: %v", err)
	}
	return dir
}

func TestClient(t *testing.T) {
	repoPath := createTestRepo(t)

	client, err := New(context.Background(), repoPath, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	t.Run("ListReferences", func(t *testing.T) {
		refs, err := client.ListReferences()
		if err != nil {
			t.Fatalf("ListReferences failed: %v", err)
		}
		slices.Sort(refs)
		want := []string{"feature/more-data", "master", "v1.0.0", "v2.0.0"}
		if diff := cmp.Diff(want, refs); diff != "" {
			t.Errorf("ListReferences mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("DefaultBranch", func(t *testing.T) {
		got, err := client.DefaultBranch()
		if err != nil {
			t.Fatalf("DefaultBranch failed: %v", err)
		}
		if got != "master" {
			t.Errorf("DefaultBranch() = %q, want %q", got, "master")
		}
	})

	readTests := []struct {
		rev, path, want string
	}{
		{"v1.0.0", "gdp.json", `{"name": "gdp-v1"}`},
		{"v2.0.0", "gdp.json", `{"name": "gdp-v2"}`},
		{"master", "datasets/population.json", `{"name": "population"}`},
		{"feature/more-data", "datasets/trade.json", `{"name": "trade"}`},
	}
	for _, tc := range readTests {
		t.Run("ReadFile "+tc.rev+" "+tc.path, func(t *testing.T) {
			content, err := client.ReadFile(tc.rev, tc.path)
			if err != nil {
				t.Fatalf("ReadFile failed: %v", err)
			}
			if string(content) != tc.want {
				t.Errorf("ReadFile() = %q, want %q", content, tc.want)
			}
		})
	}

	t.Run("ReadFile missing", func(t *testing.T) {
		if _, err := client.ReadFile("v1.0.0", "datasets/population.json"); err == nil {
			t.Error("ReadFile succeeded for a file absent at v1.0.0")
		}
		if _, err := client.ReadFile("no-such-rev", "gdp.json"); err == nil {
			t.Error("ReadFile succeeded for an unknown revision")
		}
	})

	t.Run("ListFilesRecursive", func(t *testing.T) {
		files, err := client.ListFilesRecursive("v2.0.0", "")
		if err != nil {
			t.Fatalf("ListFilesRecursive failed: %v", err)
		}
		slices.Sort(files)
		want := []string{"datasets/population.json", "gdp.json"}
		if diff := cmp.Diff(want, files); diff != "" {
			t.Errorf("ListFilesRecursive mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("ListFilesRecursive Subdir", func(t *testing.T) {
		files, err := client.ListFilesRecursive("feature/more-data", "datasets")
		if err != nil {
			t.Fatalf("ListFilesRecursive failed: %v", err)
		}
		slices.Sort(files)
		// Paths are relative to the listed directory.
		want := []string{"population.json", "trade.json"}
		if diff := cmp.Diff(want, files); diff != "" {
			t.Errorf("ListFilesRecursive (subdir) mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Update", func(t *testing.T) {
		if err := client.Update(context.Background()); err != nil {
			t.Errorf("Update failed: %v", err)
		}
	})
}
