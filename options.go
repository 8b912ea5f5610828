package idb

import "github.com/maruel/idb/internal/storage/git"

// Option configures Open.
type Option func(*options)

type options struct {
	history bool
	author  git.Author
}

// WithHistory records every save, table creation and table drop as a commit
// in a git repository rooted at the database directory. name and email
// identify the author; empty values use a default identity.
func WithHistory(name, email string) Option {
	return func(o *options) {
		o.history = true
		o.author = git.Author{Name: name, Email: email}
	}
}
