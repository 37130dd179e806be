// Package gitclient reads record files from a remote Git repository
// without checking out a worktree. The repository is cloned into memory
// and files are read directly from the object database.
package gitclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
)

const remoteName = "origin"

// Auth holds Basic Auth credentials.
// For token-based access, most hosts accept any non-empty Username
// with the token as Password.
type Auth struct {
	Username string
	Password string // or Token
}

func (a *Auth) basicAuth() *http.BasicAuth {
	if a == nil {
		return nil
	}
	return &http.BasicAuth{Username: a.Username, Password: a.Password}
}

// Client holds an in-memory clone of a repository.
type Client struct {
	repo *git.Repository
	auth *Auth
}

// New clones the repository at url into memory.
func New(ctx context.Context, url string, auth *Auth) (*Client, error) {
	cloneOpts := &git.CloneOptions{
		URL:        url,
		RemoteName: remoteName,
		NoCheckout: true,
		Tags:       git.AllTags,
	}
	if ba := auth.basicAuth(); ba != nil {
		cloneOpts.Auth = ba
	}

	repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, cloneOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to clone %s: %w", url, err)
	}
	return &Client{repo: repo, auth: auth}, nil
}

// Update fetches all branches and tags from the remote.
func (c *Client) Update(ctx context.Context) error {
	fetchOpts := &git.FetchOptions{
		RemoteName: remoteName,
		RefSpecs: []gitconfig.RefSpec{
			"+refs/heads/*:refs/remotes/" + remoteName + "/*",
			"+refs/tags/*:refs/tags/*",
		},
		Force: true,
	}
	if ba := c.auth.basicAuth(); ba != nil {
		fetchOpts.Auth = ba
	}
	err := c.repo.FetchContext(ctx, fetchOpts)
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch failed: %w", err)
	}
	return nil
}

// DefaultBranch returns the short name of the branch HEAD pointed to
// when the repository was cloned (e.g. "main").
func (c *Client) DefaultBranch() (string, error) {
	head, err := c.repo.Head()
	if err != nil {
		return "", fmt.Errorf("cannot resolve HEAD: %w", err)
	}
	return head.Name().Short(), nil
}

// ListReferences returns the short names of all branches and tags.
// Remote branches are listed without their remote prefix.
func (c *Client) ListReferences() ([]string, error) {
	refs, err := c.repo.References()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var references []string
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name()
		var short string
		switch {
		case name.IsTag() || name.IsBranch():
			short = name.Short()
		case name.IsRemote():
			// refs/remotes/origin/main -> main
			_, short, _ = strings.Cut(name.Short(), "/")
		}
		if short != "" && short != "HEAD" && !seen[short] {
			seen[short] = true
			references = append(references, short)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return references, nil
}

func (c *Client) resolveRevision(revision string) (*plumbing.Hash, error) {
	hash, err := c.repo.ResolveRevision(plumbing.Revision(revision))
	if err == nil {
		return hash, nil
	}
	// Only the default branch exists locally after a clone.
	if !strings.HasPrefix(revision, "refs/") {
		if hash, err := c.repo.ResolveRevision(plumbing.Revision(remoteName + "/" + revision)); err == nil {
			return hash, nil
		}
	}
	return nil, fmt.Errorf("revision %q not found: %w", revision, err)
}

func (c *Client) tree(revision string) (*object.Tree, error) {
	hash, err := c.resolveRevision(revision)
	if err != nil {
		return nil, err
	}
	commit, err := c.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("commit lookup failed: %w", err)
	}
	return commit.Tree()
}

// ReadFile reads filePath at the given revision (branch, tag or hash).
func (c *Client) ReadFile(revision, filePath string) ([]byte, error) {
	tree, err := c.tree(revision)
	if err != nil {
		return nil, err
	}
	file, err := tree.File(filePath)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s at %s: %w", filePath, revision, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// ListFilesRecursive lists all files below dirPath at the given revision.
// The returned paths are relative to dirPath.
func (c *Client) ListFilesRecursive(revision, dirPath string) ([]string, error) {
	rootTree, err := c.tree(revision)
	if err != nil {
		return nil, err
	}

	targetTree := rootTree
	if dirPath != "" && dirPath != "." && dirPath != "/" {
		targetTree, err = rootTree.Tree(strings.Trim(dirPath, "/"))
		if err != nil {
			return nil, fmt.Errorf("directory %q not found: %w", dirPath, err)
		}
	}

	var filePaths []string
	files := targetTree.Files()
	defer files.Close()
	err = files.ForEach(func(f *object.File) error {
		filePaths = append(filePaths, f.Name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iteration failed: %w", err)
	}
	return filePaths, nil
}
