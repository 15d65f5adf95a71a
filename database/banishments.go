package database

import (
	"database/sql"

	"github.com/pkg/errors"
)

// GetNamelockStatus reports the character's namelock state.
func (db *DB) GetNamelockStatus(characterID int) (NamelockStatus, error) {
	var status NamelockStatus
	stmt, err := db.prepare(
		"SELECT Approved FROM Namelocks WHERE CharacterID = ?1")
	if err != nil {
		return status, err
	}

	var approved int
	err = stmt.QueryRow(characterID).Scan(&approved)
	if err == sql.ErrNoRows {
		return status, nil
	}
	if err != nil {
		return status, errors.Wrap(err, "failed to query namelock status")
	}

	status.Namelocked = true
	status.Approved = approved != 0
	return status, nil
}

// IsCharacterNamelocked reports whether the character is under an
// unapproved namelock.
func (db *DB) IsCharacterNamelocked(characterID int) (bool, error) {
	status, err := db.GetNamelockStatus(characterID)
	if err != nil {
		return false, err
	}
	return status.Namelocked && !status.Approved, nil
}

// InsertNamelock records a namelock against the character.
func (db *DB) InsertNamelock(characterID int, ipAddress uint32,
	gamemasterID int, reason, comment string) error {
	stmt, err := db.prepare(
		"INSERT INTO Namelocks (CharacterID, IPAddress, GamemasterID, Reason, Comment)" +
			" VALUES (?1, ?2, ?3, ?4, ?5)")
	if err != nil {
		return err
	}

	if _, err := stmt.Exec(characterID, int64(ipAddress), gamemasterID, reason, comment); err != nil {
		return errors.Wrap(err, "failed to insert namelock")
	}
	return nil
}

// IsAccountBanished reports whether the account has an active
// banishment. Until == Issued encodes permanence.
func (db *DB) IsAccountBanished(accountID int) (bool, error) {
	stmt, err := db.prepare(
		"SELECT 1 FROM Banishments" +
			" WHERE AccountID = ?1" +
			" AND (Until = Issued OR Until > UNIXEPOCH())")
	if err != nil {
		return false, err
	}

	var one int
	err = stmt.QueryRow(accountID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to query account banishment")
	}
	return true, nil
}

// GetBanishmentStatus summarizes the banishment history of the account
// owning the character.
func (db *DB) GetBanishmentStatus(characterID int) (BanishmentStatus, error) {
	var status BanishmentStatus
	stmt, err := db.prepare(
		"SELECT B.FinalWarning, (B.Until = B.Issued OR B.Until > UNIXEPOCH())" +
			" FROM Banishments AS B" +
			" LEFT JOIN Characters AS C ON C.AccountID = B.AccountID" +
			" WHERE C.CharacterID = ?1")
	if err != nil {
		return status, err
	}

	rows, err := stmt.Query(characterID)
	if err != nil {
		return status, errors.Wrap(err, "failed to query banishment status")
	}
	defer rows.Close()

	for rows.Next() {
		var finalWarning, active int
		if err := rows.Scan(&finalWarning, &active); err != nil {
			return status, errors.Wrap(err, "failed to scan banishment")
		}

		status.TimesBanished++
		if finalWarning != 0 {
			status.FinalWarning = true
		}
		if active != 0 {
			status.Banished = true
		}
	}
	return status, rows.Err()
}

// CompoundBanishment maps the account's prior status and the requested
// duration to the effective duration and final-warning flag:
// a prior final warning makes the new banishment permanent (days 0,
// warning cleared); more than five prior banishments or an explicit
// request set the warning and raise short durations to 30 days,
// doubling longer ones.
func CompoundBanishment(status BanishmentStatus, finalWarning bool, days int) (bool, int) {
	if status.FinalWarning {
		return false, 0
	}

	if status.TimesBanished > 5 || finalWarning {
		if days < 30 {
			return true, 30
		}
		return true, 2 * days
	}

	return finalWarning, days
}

// InsertBanishment records a banishment against the character's
// account. Duration zero encodes permanence (Until = Issued). Returns
// the new banishment id, zero when the character does not exist.
func (db *DB) InsertBanishment(characterID int, ipAddress uint32, gamemasterID int,
	reason, comment string, finalWarning bool, duration int) (int, error) {
	stmt, err := db.prepare(
		"INSERT INTO Banishments (AccountID, IPAddress, GamemasterID," +
			" Reason, Comment, FinalWarning, Issued, Until)" +
			" SELECT AccountID, ?2, ?3, ?4, ?5, ?6, UNIXEPOCH(), UNIXEPOCH() + ?7" +
			" FROM Characters WHERE CharacterID = ?1" +
			" RETURNING BanishmentID")
	if err != nil {
		return 0, err
	}

	var banishmentID int
	err = stmt.QueryRow(characterID, int64(ipAddress), gamemasterID,
		reason, comment, finalWarning, duration).Scan(&banishmentID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to insert banishment")
	}
	return banishmentID, nil
}

// GetNotationCount counts notations against the character.
func (db *DB) GetNotationCount(characterID int) (int, error) {
	stmt, err := db.prepare(
		"SELECT COUNT(*) FROM Notations WHERE CharacterID = ?1")
	if err != nil {
		return 0, err
	}

	var count int
	if err := stmt.QueryRow(characterID).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count notations")
	}
	return count, nil
}

// InsertNotation records a notation against the character.
func (db *DB) InsertNotation(characterID int, ipAddress uint32,
	gamemasterID int, reason, comment string) error {
	stmt, err := db.prepare(
		"INSERT INTO Notations (CharacterID, IPAddress," +
			" GamemasterID, Reason, Comment)" +
			" VALUES (?1, ?2, ?3, ?4, ?5)")
	if err != nil {
		return err
	}

	if _, err := stmt.Exec(characterID, int64(ipAddress), gamemasterID, reason, comment); err != nil {
		return errors.Wrap(err, "failed to insert notation")
	}
	return nil
}

// IsIPBanished reports whether the address has an active banishment.
func (db *DB) IsIPBanished(ipAddress uint32) (bool, error) {
	stmt, err := db.prepare(
		"SELECT 1 FROM IPBanishments" +
			" WHERE IPAddress = ?1" +
			" AND (Until = Issued OR Until > UNIXEPOCH())")
	if err != nil {
		return false, err
	}

	var one int
	err = stmt.QueryRow(int64(ipAddress)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to query ip banishment")
	}
	return true, nil
}

// InsertIPBanishment records a banishment against an address for the
// given duration in seconds.
func (db *DB) InsertIPBanishment(characterID int, ipAddress uint32,
	gamemasterID int, reason, comment string, duration int) error {
	stmt, err := db.prepare(
		"INSERT INTO IPBanishments (CharacterID, IPAddress," +
			" GamemasterID, Reason, Comment, Issued, Until)" +
			" VALUES (?1, ?2, ?3, ?4, ?5, UNIXEPOCH(), UNIXEPOCH() + ?6)")
	if err != nil {
		return err
	}

	if _, err := stmt.Exec(characterID, int64(ipAddress), gamemasterID,
		reason, comment, duration); err != nil {
		return errors.Wrap(err, "failed to insert ip banishment")
	}
	return nil
}

// IsStatementReported reports whether the statement already has a
// Statements row, keyed by (world, timestamp, statement id).
func (db *DB) IsStatementReported(worldID int, statement *Statement) (bool, error) {
	stmt, err := db.prepare(
		"SELECT 1 FROM Statements" +
			" WHERE WorldID = ?1 AND Timestamp = ?2 AND StatementID = ?3")
	if err != nil {
		return false, err
	}

	var one int
	err = stmt.QueryRow(worldID, statement.Timestamp, statement.StatementID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to query statement")
	}
	return true, nil
}

// InsertStatements stores context statements for a report. Different
// reports commonly include overlapping context, so conflicts resolve
// with IGNORE. Statements without an id are skipped.
func (db *DB) InsertStatements(worldID int, statements []Statement) error {
	stmt, err := db.prepare(
		"INSERT OR IGNORE INTO Statements (WorldID, Timestamp," +
			" StatementID, CharacterID, Channel, Text)" +
			" VALUES (?1, ?2, ?3, ?4, ?5, ?6)")
	if err != nil {
		return err
	}

	for i := range statements {
		s := &statements[i]
		if s.StatementID == 0 {
			continue
		}

		if _, err := stmt.Exec(worldID, s.Timestamp, s.StatementID,
			s.CharacterID, s.Channel, s.Text); err != nil {
			return errors.Wrapf(err, "failed to insert statement %d", s.StatementID)
		}
	}
	return nil
}

// InsertReportedStatement records the report row pointing at one
// previously inserted statement.
func (db *DB) InsertReportedStatement(worldID int, statement *Statement,
	banishmentID, reporterID int, reason, comment string) error {
	stmt, err := db.prepare(
		"INSERT INTO ReportedStatements (WorldID, Timestamp," +
			" StatementID, CharacterID, BanishmentID, ReporterID," +
			" Reason, Comment)" +
			" VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8)")
	if err != nil {
		return err
	}

	if _, err := stmt.Exec(worldID, statement.Timestamp, statement.StatementID,
		statement.CharacterID, banishmentID, reporterID, reason, comment); err != nil {
		return errors.Wrap(err, "failed to insert reported statement")
	}
	return nil
}
