package database

import (
	"database/sql"

	"github.com/pkg/errors"
)

// GetWorldID resolves a world name to its id, zero if unknown.
func (db *DB) GetWorldID(worldName string) (int, error) {
	stmt, err := db.prepare("SELECT WorldID FROM Worlds WHERE Name = ?1")
	if err != nil {
		return 0, err
	}

	var worldID int
	err = stmt.QueryRow(worldName).Scan(&worldID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to query world id")
	}
	return worldID, nil
}

// GetWorlds lists every world with its current player count.
func (db *DB) GetWorlds() ([]World, error) {
	stmt, err := db.prepare(
		"WITH N (WorldID, NumPlayers) AS (" +
			"SELECT WorldID, COUNT(*) FROM OnlineCharacters GROUP BY WorldID" +
			")" +
			" SELECT W.Name, W.Type, COALESCE(N.NumPlayers, 0), W.MaxPlayers," +
			" W.OnlineRecord, W.OnlineRecordTimestamp" +
			" FROM Worlds AS W" +
			" LEFT JOIN N ON W.WorldID = N.WorldID")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query()
	if err != nil {
		return nil, errors.Wrap(err, "failed to query worlds")
	}
	defer rows.Close()

	var worlds []World
	for rows.Next() {
		var world World
		if err := rows.Scan(&world.Name, &world.Type, &world.NumPlayers,
			&world.MaxPlayers, &world.OnlineRecord, &world.OnlineRecordTimestamp); err != nil {
			return nil, errors.Wrap(err, "failed to scan world")
		}
		worlds = append(worlds, world)
	}
	return worlds, rows.Err()
}

// GetWorldConfig loads the game-server configuration of a world. The
// host name is returned unresolved.
func (db *DB) GetWorldConfig(worldID int) (*WorldConfig, error) {
	stmt, err := db.prepare(
		"SELECT Type, RebootTime, Host, Port, MaxPlayers," +
			" PremiumPlayerBuffer, MaxNewbies, PremiumNewbieBuffer" +
			" FROM Worlds WHERE WorldID = ?1")
	if err != nil {
		return nil, err
	}

	var config WorldConfig
	var hostName sql.NullString
	err = stmt.QueryRow(worldID).Scan(&config.Type, &config.RebootTime,
		&hostName, &config.Port, &config.MaxPlayers,
		&config.PremiumPlayerBuffer, &config.MaxNewbies, &config.PremiumNewbieBuffer)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query world config")
	}

	config.HostName = hostName.String
	return &config, nil
}

// CheckOnlineRecord bumps the world's online record if numCharacters
// exceeds it, reporting whether a new record was set.
func (db *DB) CheckOnlineRecord(worldID, numCharacters int) (bool, error) {
	stmt, err := db.prepare(
		"UPDATE Worlds SET OnlineRecord = ?2," +
			" OnlineRecordTimestamp = UNIXEPOCH()" +
			" WHERE WorldID = ?1 AND OnlineRecord < ?2")
	if err != nil {
		return false, err
	}

	res, err := stmt.Exec(worldID, numCharacters)
	if err != nil {
		return false, errors.Wrap(err, "failed to check online record")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
