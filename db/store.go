package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/rs/zerolog/log"

	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "github.com/mattn/go-sqlite3"

	"github.com/cairndb/cairn/catalog"
	"github.com/cairndb/cairn/cfg"
	"github.com/cairndb/cairn/clock"
)

// dialect builds the read-path queries.
var dialect = goqu.Dialect("sqlite3")

// Options configures a catalog store.
type Options struct {
	Path                 string
	BusyTimeoutMS        int
	ReadPoolSize         int
	MaxTables            int32 // default per-namespace table limit
	MaxColumnsPerTable   int32 // default per-table column limit
	MaxFilesSelectedOnce int   // row cap for bulk retention/GC sweeps
	Clock                clock.Clock
}

// DefaultOptions returns an in-memory store with the standard limits.
func DefaultOptions() Options {
	return Options{
		Path:                 ":memory:",
		BusyTimeoutMS:        5000,
		ReadPoolSize:         4,
		MaxTables:            500,
		MaxColumnsPerTable:   200,
		MaxFilesSelectedOnce: 1000,
	}
}

// OptionsFromConfig maps the process configuration onto store options.
func OptionsFromConfig(c *cfg.Configuration) Options {
	return Options{
		Path:                 c.Store.Path,
		BusyTimeoutMS:        c.Store.BusyTimeoutMS,
		ReadPoolSize:         c.Store.ReadPoolSize,
		MaxTables:            c.Catalog.MaxTables,
		MaxColumnsPerTable:   c.Catalog.MaxColumnsPerTable,
		MaxFilesSelectedOnce: c.Catalog.MaxFilesSelectedOnce,
	}
}

// Catalog is the SQLite-backed catalog store. Writes go through a single
// connection in WAL mode with immediate transactions; reads go through a
// small pool.
type Catalog struct {
	writeDB *sql.DB
	readDB  *sql.DB
	clock   clock.Clock
	opts    Options
}

var _ catalog.Catalog = (*Catalog)(nil)

// Open opens (and if needed creates) the catalog database at opts.Path.
func Open(opts Options) (*Catalog, error) {
	if opts.Clock == nil {
		opts.Clock = clock.NewSystemClock()
	}
	if opts.ReadPoolSize < 1 {
		opts.ReadPoolSize = 1
	}

	isMemoryDB := strings.Contains(opts.Path, ":memory:")

	// Write connection (1 connection)
	writeDSN := opts.Path
	if !isMemoryDB {
		if strings.Contains(writeDSN, "?") {
			writeDSN += fmt.Sprintf("&_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate&_foreign_keys=on", opts.BusyTimeoutMS)
		} else {
			writeDSN += fmt.Sprintf("?_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate&_foreign_keys=on", opts.BusyTimeoutMS)
		}
	}

	writeDB, err := sql.Open("sqlite3", writeDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog write database: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)
	writeDB.SetConnMaxLifetime(0)

	var readDB *sql.DB
	if isMemoryDB {
		// A second pool would open a second, distinct in-memory
		// database; share the single write connection instead.
		readDB = writeDB
		if _, err := writeDB.Exec("PRAGMA foreign_keys=ON"); err != nil {
			writeDB.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	} else {
		readDSN := opts.Path
		if strings.Contains(readDSN, "?") {
			readDSN += fmt.Sprintf("&_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on", opts.BusyTimeoutMS)
		} else {
			readDSN += fmt.Sprintf("?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on", opts.BusyTimeoutMS)
		}

		readDB, err = sql.Open("sqlite3", readDSN)
		if err != nil {
			writeDB.Close()
			return nil, fmt.Errorf("failed to open catalog read database: %w", err)
		}
		readDB.SetMaxOpenConns(opts.ReadPoolSize)
		readDB.SetMaxIdleConns(opts.ReadPoolSize)
		readDB.SetConnMaxLifetime(0)

		for _, db := range []*sql.DB{writeDB, readDB} {
			for _, pragma := range []string{
				"PRAGMA journal_mode=WAL",
				"PRAGMA synchronous=NORMAL",
				"PRAGMA cache_size=-16000",
				"PRAGMA temp_store=MEMORY",
			} {
				if _, err := db.Exec(pragma); err != nil {
					writeDB.Close()
					readDB.Close()
					return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
				}
			}
		}
	}

	// Initialize schema
	for _, schema := range CatalogSchemas() {
		if _, err := writeDB.Exec(schema); err != nil {
			writeDB.Close()
			if readDB != writeDB {
				readDB.Close()
			}
			return nil, fmt.Errorf("failed to create catalog schema: %w", err)
		}
	}

	log.Debug().Str("path", opts.Path).Msg("Catalog store opened")

	return &Catalog{
		writeDB: writeDB,
		readDB:  readDB,
		clock:   opts.Clock,
		opts:    opts,
	}, nil
}

// Repositories returns a new session over the shared store.
func (c *Catalog) Repositories() catalog.RepoSet {
	return newSession(c)
}

// Close closes both database connections.
func (c *Catalog) Close() error {
	writeErr := c.writeDB.Close()
	var readErr error
	if c.readDB != c.writeDB {
		readErr = c.readDB.Close()
	}
	if writeErr != nil {
		return writeErr
	}
	return readErr
}
