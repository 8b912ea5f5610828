// Implements Repo using go-git.

package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// maxHistory caps the number of commits History returns.
const maxHistory = 1000

// Repo is a git repository rooted at a database directory.
type Repo struct {
	dir          string
	defaultName  string
	defaultEmail string
	repo         *gogit.Repository
	mu           sync.Mutex
}

// Open opens the repository in dir, initializing it with the default
// identity when dir is not a repository yet.
func Open(dir, defaultName, defaultEmail string) (*Repo, error) {
	if defaultName == "" {
		defaultName = "idb"
	}
	if defaultEmail == "" {
		defaultEmail = "idb@localhost"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create repo directory: %w", err)
	}

	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		// Not a repo yet.
		repo, err = gogit.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = defaultName
		cfg.User.Email = defaultEmail
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}

	return &Repo{
		dir:          dir,
		defaultName:  defaultName,
		defaultEmail: defaultEmail,
		repo:         repo,
	}, nil
}

// Dir returns the working directory of the repository.
func (r *Repo) Dir() string {
	return r.dir
}

// CommitTx executes fn while holding the repository lock and commits the
// files it returns. Paths are relative to Dir. A path that no longer exists
// is recorded as a deletion.
//
// If fn returns an error or no files, or the files did not change, no commit
// is made.
func (r *Repo) CommitTx(ctx context.Context, author Author, fn func() (msg string, files []string, err error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, files, err := fn()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}
	// go-git operations don't take a context; stop before starting one.
	if err := ctx.Err(); err != nil {
		return err
	}

	w, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	for _, f := range files {
		if err := r.stage(w, f); err != nil {
			return err
		}
	}

	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}
	// Other files of the database may be untracked; only the staged files
	// decide whether there is something to commit.
	staged := false
	for _, f := range files {
		if s := status.File(filepath.ToSlash(f)).Staging; s != gogit.Unmodified && s != gogit.Untracked {
			staged = true
			break
		}
	}
	if !staged {
		return nil
	}

	name := author.Name
	email := author.Email
	if name == "" {
		name = r.defaultName
	}
	if email == "" {
		email = r.defaultEmail
	}
	now := time.Now()
	_, err = w.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  name,
			Email: email,
			When:  now,
		},
		Committer: &object.Signature{
			Name:  r.defaultName,
			Email: r.defaultEmail,
			When:  now,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (r *Repo) stage(w *gogit.Worktree, file string) error {
	if _, err := os.Lstat(filepath.Join(r.dir, file)); errors.Is(err, os.ErrNotExist) {
		if _, err := w.Remove(file); err != nil && !errors.Is(err, index.ErrEntryNotFound) {
			return fmt.Errorf("failed to stage removal of %s: %w", file, err)
		}
		return nil
	}
	if _, err := w.Add(file); err != nil {
		return fmt.Errorf("failed to stage %s: %w", file, err)
	}
	return nil
}

// History returns the commits that touched path, newest first, limited to n
// commits. n is capped at 1000; n <= 0 means the cap. A repository without
// commits has no history.
func (r *Repo) History(_ context.Context, path string, n int) ([]*Commit, error) {
	if n <= 0 || n > maxHistory {
		n = maxHistory
	}
	opts := &gogit.LogOptions{}
	if path != "" && path != "." {
		opts.FileName = &path
	}
	iter, err := r.repo.Log(opts)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	defer iter.Close()

	var commits []*Commit
	for range n {
		c, err := iter.Next()
		if err != nil {
			break
		}
		subject, body, _ := strings.Cut(c.Message, "\n")
		commits = append(commits, &Commit{
			Hash:           c.Hash.String(),
			Message:        subject,
			Body:           strings.TrimSpace(body),
			Author:         c.Author.Name,
			AuthorEmail:    c.Author.Email,
			AuthorDate:     c.Author.When,
			Committer:      c.Committer.Name,
			CommitterEmail: c.Committer.Email,
			CommitDate:     c.Committer.When,
		})
	}
	return commits, nil
}

// FileAt returns the content of path at revision rev. rev is a full or
// abbreviated hash, or any revision go-git resolves such as HEAD or HEAD~1.
func (r *Repo) FileAt(_ context.Context, rev, path string) ([]byte, error) {
	h, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", rev, err)
	}
	c, err := r.repo.CommitObject(*h)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}
	f, err := c.File(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get file at commit: %w", err)
	}
	reader, err := f.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = reader.Close() }()
	return io.ReadAll(reader)
}
