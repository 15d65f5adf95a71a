// Package database owns the embedded SQL store: the single connection,
// the prepared-statement cache, transaction scopes and the typed data
// access layer used by the query handlers.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ApplicationID is the database file magic, ASCII "TiDB".
const ApplicationID = 0x54694442

// DB wraps the embedded database file. The connection pool is pinned to
// a single connection so that explicit BEGIN/COMMIT/ROLLBACK issued
// through Exec always address the one connection every cached statement
// is bound to.
type DB struct {
	conn   *sql.DB
	stmts  *stmtCache
	sqlDir string
}

// Open opens (creating if absent) the database file, initializes the
// statement cache and brings the schema up to date from sqlDir.
func Open(databaseFile string, maxCachedStatements int, sqlDir string, now func() int64) (*DB, error) {
	log.Infof("Database file: %q", databaseFile)
	log.Infof("Max cached statements: %d", maxCachedStatements)

	conn, err := sql.Open("sqlite3", databaseFile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %q", databaseFile)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{
		conn:   conn,
		stmts:  newStmtCache(maxCachedStatements, now),
		sqlDir: sqlDir,
	}

	if err := db.checkSchema(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to check database schema")
	}

	return db, nil
}

// Close finalizes all cached statements and closes the database.
func (db *DB) Close() {
	db.stmts.closeAll()
	if err := db.conn.Close(); err != nil {
		log.Errorf("Failed to close database: %v", err)
	}
}

// prepare returns a cached prepared statement for text.
func (db *DB) prepare(text string) (*sql.Stmt, error) {
	return db.stmts.prepare(db.conn, text)
}

// execInternal runs a statement outside the cache. Used for transaction
// control and pragmas, which must not go through prepared statements
// with bound parameters.
func (db *DB) execInternal(format string, args ...interface{}) error {
	_, err := db.conn.Exec(fmt.Sprintf(format, args...))
	return err
}

func (db *DB) execFile(fileName string) error {
	text, err := os.ReadFile(fileName)
	if err != nil {
		return errors.Wrapf(err, "failed to read %q", fileName)
	}

	if _, err := db.conn.Exec(string(text)); err != nil {
		return errors.Wrapf(err, "failed to execute %q", fileName)
	}
	return nil
}

func (db *DB) pragmaInt(name string) (int, error) {
	var value int
	if err := db.conn.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return 0, errors.Wrapf(err, "failed to retrieve %s", name)
	}
	return value, nil
}

func fileExists(fileName string) bool {
	_, err := os.Stat(fileName)
	return err == nil
}

func (db *DB) initSchema() error {
	tx := db.NewTransaction("SchemaInit")
	defer tx.Close()
	if err := tx.Begin(); err != nil {
		return err
	}

	if err := db.execFile(filepath.Join(db.sqlDir, "schema.sql")); err != nil {
		return err
	}

	if err := db.execInternal("PRAGMA application_id = %d", ApplicationID); err != nil {
		return errors.Wrap(err, "failed to set application id")
	}

	if err := db.execInternal("PRAGMA user_version = 1"); err != nil {
		return errors.Wrap(err, "failed to set user version")
	}

	return tx.Commit()
}

func (db *DB) upgradeSchema(userVersion int) error {
	upgradeFile := func(version int) string {
		return filepath.Join(db.sqlDir, fmt.Sprintf("upgrade-%d.sql", version))
	}

	newVersion := userVersion
	for fileExists(upgradeFile(newVersion)) {
		newVersion++
	}

	if userVersion == newVersion {
		return nil
	}

	log.Infof("Upgrading database schema to version %d", newVersion)
	tx := db.NewTransaction("SchemaUpgrade")
	defer tx.Close()
	if err := tx.Begin(); err != nil {
		return err
	}

	for ; userVersion < newVersion; userVersion++ {
		if err := db.execFile(upgradeFile(userVersion)); err != nil {
			return err
		}
	}

	if err := db.execInternal("PRAGMA user_version = %d", userVersion); err != nil {
		return errors.Wrap(err, "failed to set user version")
	}

	return tx.Commit()
}

func (db *DB) checkSchema() error {
	applicationID, err := db.pragmaInt("application_id")
	if err != nil {
		return err
	}
	userVersion, err := db.pragmaInt("user_version")
	if err != nil {
		return err
	}

	if applicationID != ApplicationID {
		if applicationID != 0 {
			return errors.Errorf("database has unknown application id %08X (expected %08X)",
				applicationID, ApplicationID)
		}
		if userVersion != 0 {
			return errors.Errorf("database has non zero user version %d", userVersion)
		}
		if err := db.initSchema(); err != nil {
			return errors.Wrap(err, "failed to initialize database schema")
		}
		userVersion = 1
	}

	if err := db.upgradeSchema(userVersion); err != nil {
		return errors.Wrap(err, "failed to upgrade database schema")
	}

	log.Infof("Database version: %d", userVersion)
	return nil
}
