package database

import (
	"database/sql"

	"github.com/pkg/errors"
)

// roundSecondsToDays converts remaining premium seconds to whole days,
// rounding any started day up.
func roundSecondsToDays(seconds int) int {
	return (seconds + 86399) / 86400
}

// GetAccountData loads an Accounts row, nil if the account is unknown.
func (db *DB) GetAccountData(accountID int) (*Account, error) {
	stmt, err := db.prepare(
		"SELECT AccountID, Email, Auth," +
			" MAX(PremiumEnd - UNIXEPOCH(), 0)," +
			" PendingPremiumDays, Deleted" +
			" FROM Accounts WHERE AccountID = ?1")
	if err != nil {
		return nil, err
	}

	var account Account
	var premiumSeconds int
	err = stmt.QueryRow(accountID).Scan(&account.AccountID, &account.Email,
		&account.Auth, &premiumSeconds, &account.PendingPremiumDays, &account.Deleted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query account")
	}

	account.PremiumDays = roundSecondsToDays(premiumSeconds)
	return &account, nil
}

// GetAccountOnlineCharacters counts the account's characters that are
// currently online anywhere in the fleet.
func (db *DB) GetAccountOnlineCharacters(accountID int) (int, error) {
	stmt, err := db.prepare(
		"SELECT COUNT(*) FROM Characters" +
			" WHERE AccountID = ?1 AND IsOnline != 0")
	if err != nil {
		return 0, err
	}

	var count int
	if err := stmt.QueryRow(accountID).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count online characters")
	}
	return count, nil
}

// ActivatePendingPremiumDays converts pending premium days into premium
// time, extending from now or from the current premium end, whichever
// is later.
func (db *DB) ActivatePendingPremiumDays(accountID int) error {
	stmt, err := db.prepare(
		"UPDATE Accounts" +
			" SET PremiumEnd = MAX(PremiumEnd, UNIXEPOCH()) + PendingPremiumDays * 86400," +
			" PendingPremiumDays = 0" +
			" WHERE AccountID = ?1 AND PendingPremiumDays > 0")
	if err != nil {
		return err
	}

	if _, err := stmt.Exec(accountID); err != nil {
		return errors.Wrap(err, "failed to activate pending premium days")
	}
	return nil
}

// InsertLoginAttempt records a login attempt. Callers invoke this
// outside any transaction scope so the audit row survives a rollback.
func (db *DB) InsertLoginAttempt(accountID int, ipAddress uint32, failed bool) error {
	stmt, err := db.prepare(
		"INSERT INTO LoginAttempts (AccountID, IPAddress, Timestamp, Failed)" +
			" VALUES (?1, ?2, UNIXEPOCH(), ?3)")
	if err != nil {
		return err
	}

	if _, err := stmt.Exec(accountID, int64(ipAddress), failed); err != nil {
		return errors.Wrap(err, "failed to insert login attempt")
	}
	return nil
}

// GetAccountFailedLoginAttempts counts failed attempts against an
// account within the last timeWindow seconds.
func (db *DB) GetAccountFailedLoginAttempts(accountID, timeWindow int) (int, error) {
	stmt, err := db.prepare(
		"SELECT COUNT(*) FROM LoginAttempts" +
			" WHERE AccountID = ?1 AND Timestamp >= (UNIXEPOCH() - ?2) AND Failed != 0")
	if err != nil {
		return 0, err
	}

	var count int
	if err := stmt.QueryRow(accountID, timeWindow).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count account login attempts")
	}
	return count, nil
}

// GetIPAddressFailedLoginAttempts counts failed attempts from an IP
// address within the last timeWindow seconds.
func (db *DB) GetIPAddressFailedLoginAttempts(ipAddress uint32, timeWindow int) (int, error) {
	stmt, err := db.prepare(
		"SELECT COUNT(*) FROM LoginAttempts" +
			" WHERE IPAddress = ?1 AND Timestamp >= (UNIXEPOCH() - ?2) AND Failed != 0")
	if err != nil {
		return 0, err
	}

	var count int
	if err := stmt.QueryRow(int64(ipAddress), timeWindow).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count ip login attempts")
	}
	return count, nil
}

// GetCharacterEndpoints lists the account's characters with the world
// each one plays on. Host names are returned unresolved.
func (db *DB) GetCharacterEndpoints(accountID int) ([]CharacterEndpoint, error) {
	stmt, err := db.prepare(
		"SELECT C.Name, W.Name, W.Host, W.Port" +
			" FROM Characters AS C" +
			" INNER JOIN Worlds AS W ON W.WorldID = C.WorldID" +
			" WHERE C.AccountID = ?1 AND C.Deleted = 0")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(accountID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query character endpoints")
	}
	defer rows.Close()

	var endpoints []CharacterEndpoint
	for rows.Next() {
		var endpoint CharacterEndpoint
		var hostName sql.NullString
		if err := rows.Scan(&endpoint.Name, &endpoint.WorldName,
			&hostName, &endpoint.WorldPort); err != nil {
			return nil, errors.Wrap(err, "failed to scan character endpoint")
		}
		endpoint.HostName = hostName.String
		endpoints = append(endpoints, endpoint)
	}
	return endpoints, rows.Err()
}

// Character summary filters for the census surfaces.
const (
	summaryKept = iota
	summaryDeleted
	summaryHidden
)

func (db *DB) getCharacterSummaries(accountID, filter int) ([]CharacterSummary, error) {
	var where string
	switch filter {
	case summaryKept:
		where = " AND C.Deleted = 0"
	case summaryDeleted:
		where = " AND C.Deleted != 0"
	case summaryHidden:
		where = " AND R.Right IS NOT NULL"
	}

	stmt, err := db.prepare(
		"SELECT C.Name, COALESCE(W.Name, ''), C.Level, C.Profession, C.IsOnline, C.Deleted" +
			" FROM Characters AS C" +
			" LEFT JOIN Worlds AS W ON W.WorldID = C.WorldID" +
			" LEFT JOIN CharacterRights AS R" +
			" ON R.CharacterID = C.CharacterID" +
			" AND R.Right = 'NO_STATISTICS'" +
			" WHERE C.AccountID = ?1" + where)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(accountID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query character summaries")
	}
	defer rows.Close()

	var characters []CharacterSummary
	for rows.Next() {
		var character CharacterSummary
		var online int
		if err := rows.Scan(&character.Name, &character.World, &character.Level,
			&character.Profession, &online, &character.Deleted); err != nil {
			return nil, errors.Wrap(err, "failed to scan character summary")
		}
		character.Online = online != 0
		characters = append(characters, character)
	}
	return characters, rows.Err()
}

// GetKeptCharacterSummaries lists the account's live characters.
func (db *DB) GetKeptCharacterSummaries(accountID int) ([]CharacterSummary, error) {
	return db.getCharacterSummaries(accountID, summaryKept)
}

// GetDeletedCharacterSummaries lists the account's soft-deleted
// characters.
func (db *DB) GetDeletedCharacterSummaries(accountID int) ([]CharacterSummary, error) {
	return db.getCharacterSummaries(accountID, summaryDeleted)
}

// GetHiddenCharacterSummaries lists the account's characters hidden
// from public statistics.
func (db *DB) GetHiddenCharacterSummaries(accountID int) ([]CharacterSummary, error) {
	return db.getCharacterSummaries(accountID, summaryHidden)
}
