package database

import (
	"github.com/pkg/errors"
)

// GetKillStatistics lists the per-race kill aggregates of the world.
func (db *DB) GetKillStatistics(worldID int) ([]KillStatistics, error) {
	stmt, err := db.prepare(
		"SELECT RaceName, TimesKilled, PlayersKilled" +
			" FROM KillStatistics WHERE WorldID = ?1")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(worldID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query kill statistics")
	}
	defer rows.Close()

	var stats []KillStatistics
	for rows.Next() {
		var entry KillStatistics
		if err := rows.Scan(&entry.RaceName, &entry.TimesKilled, &entry.PlayersKilled); err != nil {
			return nil, errors.Wrap(err, "failed to scan kill statistics")
		}
		stats = append(stats, entry)
	}
	return stats, rows.Err()
}

// MergeKillStatistics upserts kill aggregates, adding new counts onto
// existing rows.
func (db *DB) MergeKillStatistics(worldID int, stats []KillStatistics) error {
	stmt, err := db.prepare(
		"INSERT INTO KillStatistics (WorldID, RaceName, TimesKilled, PlayersKilled)" +
			" VALUES (?1, ?2, ?3, ?4)" +
			" ON CONFLICT DO UPDATE SET TimesKilled = TimesKilled + Excluded.TimesKilled," +
			" PlayersKilled = PlayersKilled + Excluded.PlayersKilled")
	if err != nil {
		return err
	}

	for i := range stats {
		entry := &stats[i]
		if _, err := stmt.Exec(worldID, entry.RaceName,
			entry.TimesKilled, entry.PlayersKilled); err != nil {
			return errors.Wrapf(err, "failed to merge %q stats", entry.RaceName)
		}
	}
	return nil
}

// GetOnlineCharacters lists the published player list of the world.
func (db *DB) GetOnlineCharacters(worldID int) ([]OnlineCharacter, error) {
	stmt, err := db.prepare(
		"SELECT Name, Level, Profession" +
			" FROM OnlineCharacters WHERE WorldID = ?1")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(worldID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query online characters")
	}
	defer rows.Close()

	var characters []OnlineCharacter
	for rows.Next() {
		var character OnlineCharacter
		if err := rows.Scan(&character.Name, &character.Level, &character.Profession); err != nil {
			return nil, errors.Wrap(err, "failed to scan online character")
		}
		characters = append(characters, character)
	}
	return characters, rows.Err()
}

// DeleteOnlineCharacters clears the published player list of the world.
func (db *DB) DeleteOnlineCharacters(worldID int) error {
	stmt, err := db.prepare(
		"DELETE FROM OnlineCharacters WHERE WorldID = ?1")
	if err != nil {
		return err
	}

	if _, err := stmt.Exec(worldID); err != nil {
		return errors.Wrap(err, "failed to delete online characters")
	}
	return nil
}

// InsertOnlineCharacters publishes a new player list for the world.
func (db *DB) InsertOnlineCharacters(worldID int, characters []OnlineCharacter) error {
	stmt, err := db.prepare(
		"INSERT INTO OnlineCharacters (WorldID, Name, Level, Profession)" +
			" VALUES (?1, ?2, ?3, ?4)")
	if err != nil {
		return err
	}

	for i := range characters {
		character := &characters[i]
		if _, err := stmt.Exec(worldID, character.Name,
			character.Level, character.Profession); err != nil {
			return errors.Wrapf(err, "failed to insert character %q", character.Name)
		}
	}
	return nil
}
