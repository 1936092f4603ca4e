package db

import (
	"sync"

	"github.com/cairndb/cairn/catalog"
)

// Session is one unit-of-work handle over the shared store. A mutex
// serializes every repository call made through the same session; distinct
// sessions run concurrently against the store.
type Session struct {
	cat *Catalog
	mu  sync.Mutex
}

var _ catalog.RepoSet = (*Session)(nil)

func newSession(cat *Catalog) *Session {
	return &Session{cat: cat}
}

func (s *Session) Namespaces() catalog.NamespaceRepo {
	return &namespaceRepo{s}
}

func (s *Session) Tables() catalog.TableRepo {
	return &tableRepo{s}
}

func (s *Session) Columns() catalog.ColumnRepo {
	return &columnRepo{s}
}

func (s *Session) Partitions() catalog.PartitionRepo {
	return &partitionRepo{s}
}

func (s *Session) ParquetFiles() catalog.ParquetFileRepo {
	return &parquetFileRepo{s}
}
