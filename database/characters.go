package database

import (
	"database/sql"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// NOTE: A character is uniquely identified by its id. The world id
// carried on every write exists purely to stop a world from modifying
// a character belonging to another world.

// GetCharacterID resolves a name within a world, zero if unknown.
func (db *DB) GetCharacterID(worldID int, characterName string) (int, error) {
	stmt, err := db.prepare(
		"SELECT CharacterID FROM Characters" +
			" WHERE WorldID = ?1 AND Name = ?2")
	if err != nil {
		return 0, err
	}

	var characterID int
	err = stmt.QueryRow(worldID, characterName).Scan(&characterID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to query character id")
	}
	return characterID, nil
}

// GetCharacterLoginData loads the login view of a character by its
// fleet-unique name, nil if unknown.
func (db *DB) GetCharacterLoginData(characterName string) (*CharacterLoginData, error) {
	stmt, err := db.prepare(
		"SELECT WorldID, CharacterID, AccountID, Name," +
			" Sex, Guild, Rank, Title, Deleted" +
			" FROM Characters WHERE Name = ?1")
	if err != nil {
		return nil, err
	}

	var character CharacterLoginData
	err = stmt.QueryRow(characterName).Scan(&character.WorldID, &character.CharacterID,
		&character.AccountID, &character.Name, &character.Sex,
		&character.Guild, &character.Rank, &character.Title, &character.Deleted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query character login data")
	}
	return &character, nil
}

// GetCharacterRight reports whether the character holds the named right.
func (db *DB) GetCharacterRight(characterID int, right string) (bool, error) {
	stmt, err := db.prepare(
		"SELECT 1 FROM CharacterRights" +
			" WHERE CharacterID = ?1 AND Right = ?2")
	if err != nil {
		return false, err
	}

	var one int
	err = stmt.QueryRow(characterID, right).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to query character right")
	}
	return true, nil
}

// GetCharacterRights lists every right the character holds.
func (db *DB) GetCharacterRights(characterID int) ([]string, error) {
	stmt, err := db.prepare(
		"SELECT Right FROM CharacterRights WHERE CharacterID = ?1")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(characterID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query character rights")
	}
	defer rows.Close()

	var rights []string
	for rows.Next() {
		var right string
		if err := rows.Scan(&right); err != nil {
			return nil, errors.Wrap(err, "failed to scan character right")
		}
		rights = append(rights, right)
	}
	return rights, rows.Err()
}

// GetGuildLeaderStatus reports whether the character is currently the
// leader of a guild. The rank comparison is case-insensitive.
func (db *DB) GetGuildLeaderStatus(worldID, characterID int) (bool, error) {
	stmt, err := db.prepare(
		"SELECT Guild, Rank FROM Characters" +
			" WHERE WorldID = ?1 AND CharacterID = ?2")
	if err != nil {
		return false, err
	}

	var guild, rank sql.NullString
	err = stmt.QueryRow(worldID, characterID).Scan(&guild, &rank)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to query guild status")
	}

	return guild.String != "" && equalFoldASCII(rank.String, "Leader"), nil
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// IncrementIsOnline bumps the character's online reference count.
func (db *DB) IncrementIsOnline(worldID, characterID int) (bool, error) {
	stmt, err := db.prepare(
		"UPDATE Characters SET IsOnline = IsOnline + 1" +
			" WHERE WorldID = ?1 AND CharacterID = ?2")
	if err != nil {
		return false, err
	}

	res, err := stmt.Exec(worldID, characterID)
	if err != nil {
		return false, errors.Wrap(err, "failed to increment IsOnline")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DecrementIsOnline drops the character's online reference count. The
// counter should stay non-negative under paired login/logout; underflow
// is tolerated but logged.
func (db *DB) DecrementIsOnline(worldID, characterID int) (bool, error) {
	stmt, err := db.prepare(
		"UPDATE Characters SET IsOnline = IsOnline - 1" +
			" WHERE WorldID = ?1 AND CharacterID = ?2" +
			" RETURNING IsOnline")
	if err != nil {
		return false, err
	}

	var isOnline int
	err = stmt.QueryRow(worldID, characterID).Scan(&isOnline)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to decrement IsOnline")
	}

	if isOnline < 0 {
		log.Warnf("IsOnline underflow for character %d (world %d)", characterID, worldID)
	}
	return true, nil
}

// ClearIsOnline resets every online counter of a world, returning the
// number of affected characters.
func (db *DB) ClearIsOnline(worldID int) (int, error) {
	stmt, err := db.prepare(
		"UPDATE Characters SET IsOnline = 0" +
			" WHERE WorldID = ?1 AND IsOnline != 0")
	if err != nil {
		return 0, err
	}

	res, err := stmt.Exec(worldID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to clear IsOnline")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// LogoutCharacter persists the end-of-session state and releases the
// online reference in one update.
func (db *DB) LogoutCharacter(worldID, characterID, level int,
	profession, residence string, lastLoginTime, tutorActivities int) (bool, error) {
	stmt, err := db.prepare(
		"UPDATE Characters" +
			" SET Level = ?3," +
			" Profession = ?4," +
			" Residence = ?5," +
			" LastLoginTime = ?6," +
			" TutorActivities = ?7," +
			" IsOnline = IsOnline - 1" +
			" WHERE WorldID = ?1 AND CharacterID = ?2")
	if err != nil {
		return false, err
	}

	res, err := stmt.Exec(worldID, characterID, level,
		profession, residence, lastLoginTime, tutorActivities)
	if err != nil {
		return false, errors.Wrap(err, "failed to logout character")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetCharacterIndexEntries returns up to maxEntries characters of a
// world with CharacterID >= minimumCharacterID, ascending.
func (db *DB) GetCharacterIndexEntries(worldID, minimumCharacterID, maxEntries int) ([]CharacterIndexEntry, error) {
	stmt, err := db.prepare(
		"SELECT CharacterID, Name FROM Characters" +
			" WHERE WorldID = ?1 AND CharacterID >= ?2" +
			" ORDER BY CharacterID ASC LIMIT ?3")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(worldID, minimumCharacterID, maxEntries)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query character index")
	}
	defer rows.Close()

	var entries []CharacterIndexEntry
	for rows.Next() {
		var entry CharacterIndexEntry
		if err := rows.Scan(&entry.CharacterID, &entry.Name); err != nil {
			return nil, errors.Wrap(err, "failed to scan character index entry")
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// InsertCharacterDeath records a death for the kill statistics surface.
func (db *DB) InsertCharacterDeath(worldID, characterID, level, offenderID int,
	remark string, unjustified bool, timestamp int) (bool, error) {
	stmt, err := db.prepare(
		"INSERT INTO CharacterDeaths (CharacterID, Level," +
			" OffenderID, Remark, Unjustified, Timestamp)" +
			" SELECT ?2, ?3, ?4, ?5, ?6, ?7 FROM Characters" +
			" WHERE WorldID = ?1 AND CharacterID = ?2")
	if err != nil {
		return false, err
	}

	res, err := stmt.Exec(worldID, characterID, level, offenderID,
		remark, unjustified, timestamp)
	if err != nil {
		return false, errors.Wrap(err, "failed to insert character death")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// InsertBuddy adds a buddy-list entry. Duplicates resolve as successful
// insertions through the IGNORE conflict resolution.
func (db *DB) InsertBuddy(worldID, accountID, buddyID int) error {
	stmt, err := db.prepare(
		"INSERT OR IGNORE INTO Buddies (WorldID, AccountID, BuddyID)" +
			" SELECT ?1, ?2, ?3 FROM Characters" +
			" WHERE WorldID = ?1 AND CharacterID = ?3")
	if err != nil {
		return err
	}

	if _, err := stmt.Exec(worldID, accountID, buddyID); err != nil {
		return errors.Wrap(err, "failed to insert buddy")
	}
	return nil
}

// DeleteBuddy removes a buddy-list entry. Removing an absent entry
// counts as success.
func (db *DB) DeleteBuddy(worldID, accountID, buddyID int) error {
	stmt, err := db.prepare(
		"DELETE FROM Buddies" +
			" WHERE WorldID = ?1 AND AccountID = ?2 AND BuddyID = ?3")
	if err != nil {
		return err
	}

	if _, err := stmt.Exec(worldID, accountID, buddyID); err != nil {
		return errors.Wrap(err, "failed to delete buddy")
	}
	return nil
}

// GetBuddies lists an account's buddies on one world.
func (db *DB) GetBuddies(worldID, accountID int) ([]AccountBuddy, error) {
	stmt, err := db.prepare(
		"SELECT B.BuddyID, C.Name" +
			" FROM Buddies AS B" +
			" INNER JOIN Characters AS C" +
			" ON C.WorldID = B.WorldID AND C.CharacterID = B.BuddyID" +
			" WHERE B.WorldID = ?1 AND B.AccountID = ?2")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(worldID, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query buddies")
	}
	defer rows.Close()

	var buddies []AccountBuddy
	for rows.Next() {
		var buddy AccountBuddy
		if err := rows.Scan(&buddy.CharacterID, &buddy.Name); err != nil {
			return nil, errors.Wrap(err, "failed to scan buddy")
		}
		buddies = append(buddies, buddy)
	}
	return buddies, rows.Err()
}

// GetWorldInvitation reports whether the character is invited to a
// private world.
func (db *DB) GetWorldInvitation(worldID, characterID int) (bool, error) {
	stmt, err := db.prepare(
		"SELECT 1 FROM WorldInvitations" +
			" WHERE WorldID = ?1 AND CharacterID = ?2")
	if err != nil {
		return false, err
	}

	var one int
	err = stmt.QueryRow(worldID, characterID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to query world invitation")
	}
	return true, nil
}

// DeleteOldCharacter soft-deletes one of the account's characters.
// A character still holding an online reference cannot be deleted, or
// its IsOnline counter could never be paired back to zero.
func (db *DB) DeleteOldCharacter(accountID int, characterName string) (bool, error) {
	stmt, err := db.prepare(
		"UPDATE Characters SET Deleted = 1" +
			" WHERE AccountID = ?1 AND Name = ?2 AND Deleted = 0 AND IsOnline = 0")
	if err != nil {
		return false, err
	}

	res, err := stmt.Exec(accountID, characterName)
	if err != nil {
		return false, errors.Wrap(err, "failed to delete character")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
