package index

// PostIndex defines the interface for post indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type PostIndex interface {
	UpsertPost(e *Entry) error
	DeletePost(path string) error
	GetChecksum(path string) (string, error)
	GetPost(slug string) (*Post, error)
	ListPosts(limit, offset int, includeDrafts bool) ([]PostRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Backlinks(slug string) ([]Backlink, error)
	References(slug string) ([]RefRow, error)
	Unresolved() ([]RefRow, error)
	AllChecksums() (map[string]string, error)
	Ping() error
	Close() error
}

// Builder compiles a post file into an index entry.
type Builder interface {
	Build(path string, data []byte) (*Entry, error)
}

// Verify *DB satisfies PostIndex at compile time.
var _ PostIndex = (*DB)(nil)
