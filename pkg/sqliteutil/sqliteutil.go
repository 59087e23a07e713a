// Package sqliteutil opens the databases used by the service, either a local sqlite file or a
// remote libsql server.
package sqliteutil

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

type Config struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (c Config) Empty() bool {
	return c.File == "" && c.Url == ""
}

// OpenDB opens the configured database and applies schema to it, schema must be idempotent.
func (c Config) OpenDB(schema string) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch {
	case c.Url != "":
		db, err = openRemote(c.Url, c.AuthToken)
	case c.File != "":
		db, err = OpenFile(c.File)
	default:
		return nil, fmt.Errorf("neither a database file nor url was specified")
	}
	if err != nil {
		return nil, err
	}

	if schema != "" {
		_, err = db.Exec(schema)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return db, nil
}

func openRemote(dburl, authToken string) (*sql.DB, error) {
	values := url.Values{}
	if authToken != "" {
		values.Add("authToken", authToken)
	}
	if len(values) == 0 {
		return sql.Open("libsql", dburl)
	}
	return sql.Open("libsql", dburl+"?"+values.Encode())
}

// OpenFile opens a local sqlite database, creating the file if it does not exist. ":memory:"
// opens a private in-memory database.
func OpenFile(path string) (*sql.DB, error) {
	if path != ":memory:" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		path = abs

		_, statErr := os.Stat(path)
		if os.IsNotExist(statErr) {
			f, err := os.Create(path)
			if err != nil {
				return nil, err
			}
			f.Close()
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite only allows one writer at a time
	db.SetMaxOpenConns(1)
	if path == ":memory:" {
		return db, nil
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
