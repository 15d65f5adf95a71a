package database

import (
	log "github.com/sirupsen/logrus"
)

// TransactionScope wraps an explicit BEGIN/COMMIT pair. A scope that is
// closed while still running issues ROLLBACK, so handlers construct the
// scope, defer Close, and rely on any early return to roll back.
type TransactionScope struct {
	db      *DB
	context string
	running bool
}

// NewTransaction creates a scope tagged with a context label for logs.
func (db *DB) NewTransaction(context string) *TransactionScope {
	if context == "" {
		context = "NOCONTEXT"
	}
	return &TransactionScope{db: db, context: context}
}

// Begin starts the transaction. Beginning a running scope is an error.
func (tx *TransactionScope) Begin() error {
	if tx.running {
		log.Errorf("Transaction (%s) already running", tx.context)
		return errTxRunning
	}

	if err := tx.db.execInternal("BEGIN"); err != nil {
		log.Errorf("Failed to begin transaction (%s): %v", tx.context, err)
		return err
	}

	tx.running = true
	return nil
}

// Commit commits the transaction. Committing a scope that is not
// running is an error.
func (tx *TransactionScope) Commit() error {
	if !tx.running {
		log.Errorf("Transaction (%s) not running", tx.context)
		return errTxNotRunning
	}

	if err := tx.db.execInternal("COMMIT"); err != nil {
		log.Errorf("Failed to commit transaction (%s): %v", tx.context, err)
		return err
	}

	tx.running = false
	return nil
}

// Close rolls the transaction back if it is still running.
func (tx *TransactionScope) Close() {
	if tx.running {
		tx.running = false
		if err := tx.db.execInternal("ROLLBACK"); err != nil {
			log.Errorf("Failed to rollback transaction (%s): %v", tx.context, err)
		}
	}
}
