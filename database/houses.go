package database

import (
	"database/sql"

	"github.com/pkg/errors"
)

// FinishHouseAuctions drains auctions of the world whose finish time
// has elapsed, returning them. The delete-and-return pair is not
// transactional: a crash between drain and delivery loses the drained
// rows with no other side effects.
func (db *DB) FinishHouseAuctions(worldID int) ([]HouseAuction, error) {
	stmt, err := db.prepare(
		"DELETE FROM HouseAuctions" +
			" WHERE WorldID = ?1 AND FinishTime IS NOT NULL AND FinishTime <= UNIXEPOCH()" +
			" RETURNING HouseID, BidderID, BidAmount, FinishTime," +
			" (SELECT Name FROM Characters WHERE CharacterID = BidderID)")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(worldID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to finish auctions")
	}
	defer rows.Close()

	var auctions []HouseAuction
	for rows.Next() {
		var auction HouseAuction
		var bidderName sql.NullString
		if err := rows.Scan(&auction.HouseID, &auction.BidderID,
			&auction.BidAmount, &auction.FinishTime, &bidderName); err != nil {
			return nil, errors.Wrap(err, "failed to scan auction")
		}
		auction.BidderName = bidderName.String
		auctions = append(auctions, auction)
	}
	return auctions, rows.Err()
}

// FinishHouseTransfers drains matured house transfers of the world,
// returning them. Same crash tradeoff as FinishHouseAuctions.
func (db *DB) FinishHouseTransfers(worldID int) ([]HouseTransfer, error) {
	stmt, err := db.prepare(
		"DELETE FROM HouseTransfers" +
			" WHERE WorldID = ?1 AND FinishTime IS NOT NULL AND FinishTime <= UNIXEPOCH()" +
			" RETURNING HouseID, NewOwnerID, Price," +
			" (SELECT Name FROM Characters WHERE CharacterID = NewOwnerID)")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(worldID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to finish transfers")
	}
	defer rows.Close()

	var transfers []HouseTransfer
	for rows.Next() {
		var transfer HouseTransfer
		var newOwnerName sql.NullString
		if err := rows.Scan(&transfer.HouseID, &transfer.NewOwnerID,
			&transfer.Price, &newOwnerName); err != nil {
			return nil, errors.Wrap(err, "failed to scan transfer")
		}
		transfer.NewOwnerName = newOwnerName.String
		transfers = append(transfers, transfer)
	}
	return transfers, rows.Err()
}

// GetFreeAccountEvictions lists houses whose owner's account no longer
// has premium time.
func (db *DB) GetFreeAccountEvictions(worldID int) ([]HouseEviction, error) {
	stmt, err := db.prepare(
		"SELECT O.HouseID, O.OwnerID" +
			" FROM HouseOwners AS O" +
			" LEFT JOIN Characters AS C ON C.CharacterID = O.OwnerID" +
			" LEFT JOIN Accounts AS A ON A.AccountID = C.AccountID" +
			" WHERE O.WorldID = ?1" +
			" AND (A.PremiumEnd IS NULL OR A.PremiumEnd < UNIXEPOCH())")
	if err != nil {
		return nil, err
	}
	return db.queryEvictions(stmt, worldID)
}

// GetDeletedCharacterEvictions lists houses whose owner no longer
// exists or is soft-deleted.
func (db *DB) GetDeletedCharacterEvictions(worldID int) ([]HouseEviction, error) {
	stmt, err := db.prepare(
		"SELECT O.HouseID, O.OwnerID" +
			" FROM HouseOwners AS O" +
			" LEFT JOIN Characters AS C ON C.CharacterID = O.OwnerID" +
			" WHERE O.WorldID = ?1" +
			" AND (C.CharacterID IS NULL OR C.Deleted != 0)")
	if err != nil {
		return nil, err
	}
	return db.queryEvictions(stmt, worldID)
}

func (db *DB) queryEvictions(stmt *sql.Stmt, worldID int) ([]HouseEviction, error) {
	rows, err := stmt.Query(worldID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query evictions")
	}
	defer rows.Close()

	var evictions []HouseEviction
	for rows.Next() {
		var eviction HouseEviction
		if err := rows.Scan(&eviction.HouseID, &eviction.OwnerID); err != nil {
			return nil, errors.Wrap(err, "failed to scan eviction")
		}
		evictions = append(evictions, eviction)
	}
	return evictions, rows.Err()
}

// InsertHouseOwner records a new house ownership.
func (db *DB) InsertHouseOwner(worldID, houseID, ownerID, paidUntil int) error {
	stmt, err := db.prepare(
		"INSERT INTO HouseOwners (WorldID, HouseID, OwnerID, PaidUntil)" +
			" VALUES (?1, ?2, ?3, ?4)")
	if err != nil {
		return err
	}

	if _, err := stmt.Exec(worldID, houseID, ownerID, paidUntil); err != nil {
		return errors.Wrap(err, "failed to insert house owner")
	}
	return nil
}

// UpdateHouseOwner rewrites an existing house ownership.
func (db *DB) UpdateHouseOwner(worldID, houseID, ownerID, paidUntil int) (bool, error) {
	stmt, err := db.prepare(
		"UPDATE HouseOwners SET OwnerID = ?3, PaidUntil = ?4" +
			" WHERE WorldID = ?1 AND HouseID = ?2")
	if err != nil {
		return false, err
	}

	res, err := stmt.Exec(worldID, houseID, ownerID, paidUntil)
	if err != nil {
		return false, errors.Wrap(err, "failed to update house owner")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DeleteHouseOwner removes a house ownership.
func (db *DB) DeleteHouseOwner(worldID, houseID int) (bool, error) {
	stmt, err := db.prepare(
		"DELETE FROM HouseOwners" +
			" WHERE WorldID = ?1 AND HouseID = ?2")
	if err != nil {
		return false, err
	}

	res, err := stmt.Exec(worldID, houseID)
	if err != nil {
		return false, errors.Wrap(err, "failed to delete house owner")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetHouseOwners lists every house ownership of the world.
func (db *DB) GetHouseOwners(worldID int) ([]HouseOwner, error) {
	stmt, err := db.prepare(
		"SELECT O.HouseID, O.OwnerID, C.Name, O.PaidUntil" +
			" FROM HouseOwners AS O" +
			" LEFT JOIN Characters AS C ON C.CharacterID = O.OwnerID" +
			" WHERE O.WorldID = ?1")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(worldID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query house owners")
	}
	defer rows.Close()

	var owners []HouseOwner
	for rows.Next() {
		var owner HouseOwner
		var ownerName sql.NullString
		if err := rows.Scan(&owner.HouseID, &owner.OwnerID,
			&ownerName, &owner.PaidUntil); err != nil {
			return nil, errors.Wrap(err, "failed to scan house owner")
		}
		owner.OwnerName = ownerName.String
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

// GetHouseAuctions lists the houses currently up for auction.
func (db *DB) GetHouseAuctions(worldID int) ([]int, error) {
	stmt, err := db.prepare(
		"SELECT HouseID FROM HouseAuctions WHERE WorldID = ?1")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(worldID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query auctions")
	}
	defer rows.Close()

	var houseIDs []int
	for rows.Next() {
		var houseID int
		if err := rows.Scan(&houseID); err != nil {
			return nil, errors.Wrap(err, "failed to scan auction")
		}
		houseIDs = append(houseIDs, houseID)
	}
	return houseIDs, rows.Err()
}

// StartHouseAuction opens an auction with no bid and no finish time.
func (db *DB) StartHouseAuction(worldID, houseID int) error {
	stmt, err := db.prepare(
		"INSERT INTO HouseAuctions (WorldID, HouseID) VALUES (?1, ?2)")
	if err != nil {
		return err
	}

	if _, err := stmt.Exec(worldID, houseID); err != nil {
		return errors.Wrap(err, "failed to start auction")
	}
	return nil
}

// DeleteHouses removes every house definition of the world.
func (db *DB) DeleteHouses(worldID int) error {
	stmt, err := db.prepare(
		"DELETE FROM Houses WHERE WorldID = ?1")
	if err != nil {
		return err
	}

	if _, err := stmt.Exec(worldID); err != nil {
		return errors.Wrap(err, "failed to delete houses")
	}
	return nil
}

// InsertHouses bulk-inserts house definitions.
func (db *DB) InsertHouses(worldID int, houses []House) error {
	stmt, err := db.prepare(
		"INSERT INTO Houses (WorldID, HouseID, Name, Rent, Description," +
			" Size, PositionX, PositionY, PositionZ, Town, GuildHouse)" +
			" VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11)")
	if err != nil {
		return err
	}

	for i := range houses {
		house := &houses[i]
		if _, err := stmt.Exec(worldID, house.HouseID, house.Name, house.Rent,
			house.Description, house.Size, house.PositionX, house.PositionY,
			house.PositionZ, house.Town, house.GuildHouse); err != nil {
			return errors.Wrapf(err, "failed to insert house %d", house.HouseID)
		}
	}
	return nil
}

// ExcludeFromAuctions bars a character from house auctions for the
// given duration in seconds. banishmentID links the companion
// banishment row, zero if none was generated.
func (db *DB) ExcludeFromAuctions(worldID, characterID, duration, banishmentID int) (bool, error) {
	stmt, err := db.prepare(
		"INSERT INTO HouseAuctionExclusions (CharacterID, Issued, Until, BanishmentID)" +
			" SELECT ?2, UNIXEPOCH(), (UNIXEPOCH() + ?3), ?4 FROM Characters" +
			" WHERE WorldID = ?1 AND CharacterID = ?2")
	if err != nil {
		return false, err
	}

	res, err := stmt.Exec(worldID, characterID, duration, banishmentID)
	if err != nil {
		return false, errors.Wrap(err, "failed to insert auction exclusion")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
