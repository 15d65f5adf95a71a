package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHouseOwnerLifecycle(t *testing.T) {
	db := openTestDB(t)
	worldID := seedWorld(t, db, "Alpha", "127.0.0.1", 7172)
	seedAccount(t, db, 100, "a@b.c", make([]byte, 64))
	ownerID := seedCharacter(t, db, worldID, 100, "Owner")

	require.NoError(t, db.InsertHouseOwner(worldID, 17, ownerID, 12345))

	owners, err := db.GetHouseOwners(worldID)
	require.NoError(t, err)
	require.Len(t, owners, 1)
	require.Equal(t, 17, owners[0].HouseID)
	require.Equal(t, "Owner", owners[0].OwnerName)
	require.Equal(t, 12345, owners[0].PaidUntil)

	ok, err := db.UpdateHouseOwner(worldID, 17, ownerID, 99999)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = db.UpdateHouseOwner(worldID, 18, ownerID, 99999)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = db.DeleteHouseOwner(worldID, 17)
	require.NoError(t, err)
	require.True(t, ok)

	owners, err = db.GetHouseOwners(worldID)
	require.NoError(t, err)
	require.Empty(t, owners)
}

func TestFinishHouseAuctions(t *testing.T) {
	db := openTestDB(t)
	worldID := seedWorld(t, db, "Alpha", "127.0.0.1", 7172)
	seedAccount(t, db, 100, "a@b.c", make([]byte, 64))
	bidderID := seedCharacter(t, db, worldID, 100, "Bidder")

	require.NoError(t, db.StartHouseAuction(worldID, 1))

	now := time.Now().Unix()
	_, err := db.conn.Exec(
		"INSERT INTO HouseAuctions (WorldID, HouseID, BidderID, BidAmount, FinishTime) VALUES (?, 2, ?, 5000, ?)",
		worldID, bidderID, now-10)
	require.NoError(t, err)
	_, err = db.conn.Exec(
		"INSERT INTO HouseAuctions (WorldID, HouseID, BidderID, BidAmount, FinishTime) VALUES (?, 3, ?, 100, ?)",
		worldID, bidderID, now+3600)
	require.NoError(t, err)

	auctions, err := db.FinishHouseAuctions(worldID)
	require.NoError(t, err)
	require.Len(t, auctions, 1, "only matured auctions drain")
	require.Equal(t, 2, auctions[0].HouseID)
	require.Equal(t, "Bidder", auctions[0].BidderName)
	require.Equal(t, 5000, auctions[0].BidAmount)

	// Running auctions and the never-finishing one stay behind.
	remaining, err := db.GetHouseAuctions(worldID)
	require.NoError(t, err)
	require.ElementsMatch(t, []int{1, 3}, remaining)
}

func TestFinishHouseTransfers(t *testing.T) {
	db := openTestDB(t)
	worldID := seedWorld(t, db, "Alpha", "127.0.0.1", 7172)
	seedAccount(t, db, 100, "a@b.c", make([]byte, 64))
	newOwnerID := seedCharacter(t, db, worldID, 100, "New Owner")

	now := time.Now().Unix()
	_, err := db.conn.Exec(
		"INSERT INTO HouseTransfers (WorldID, HouseID, NewOwnerID, Price, FinishTime) VALUES (?, 5, ?, 100000, ?)",
		worldID, newOwnerID, now-1)
	require.NoError(t, err)

	transfers, err := db.FinishHouseTransfers(worldID)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	require.Equal(t, 5, transfers[0].HouseID)
	require.Equal(t, "New Owner", transfers[0].NewOwnerName)
	require.Equal(t, 100000, transfers[0].Price)

	transfers, err = db.FinishHouseTransfers(worldID)
	require.NoError(t, err)
	require.Empty(t, transfers, "drained rows are gone")
}

func TestEvictions(t *testing.T) {
	db := openTestDB(t)
	worldID := seedWorld(t, db, "Alpha", "127.0.0.1", 7172)
	seedAccount(t, db, 100, "free@b.c", make([]byte, 64))
	seedAccount(t, db, 200, "premium@b.c", make([]byte, 64))
	_, err := db.conn.Exec(
		"UPDATE Accounts SET PremiumEnd = ? WHERE AccountID = 200", time.Now().Unix()+86400)
	require.NoError(t, err)

	freeOwner := seedCharacter(t, db, worldID, 100, "Free Owner")
	premiumOwner := seedCharacter(t, db, worldID, 200, "Premium Owner")
	deletedOwner := seedCharacter(t, db, worldID, 200, "Deleted Owner")
	_, err = db.conn.Exec("UPDATE Characters SET Deleted = 1 WHERE CharacterID = ?", deletedOwner)
	require.NoError(t, err)

	require.NoError(t, db.InsertHouseOwner(worldID, 1, freeOwner, 0))
	require.NoError(t, db.InsertHouseOwner(worldID, 2, premiumOwner, 0))
	require.NoError(t, db.InsertHouseOwner(worldID, 3, deletedOwner, 0))

	free, err := db.GetFreeAccountEvictions(worldID)
	require.NoError(t, err)
	require.Len(t, free, 1)
	require.Equal(t, 1, free[0].HouseID)

	deleted, err := db.GetDeletedCharacterEvictions(worldID)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	require.Equal(t, 3, deleted[0].HouseID)
}

func TestInsertHousesReplacesWorld(t *testing.T) {
	db := openTestDB(t)
	worldID := seedWorld(t, db, "Alpha", "127.0.0.1", 7172)
	otherWorldID := seedWorld(t, db, "Beta", "127.0.0.1", 7173)

	require.NoError(t, db.InsertHouses(worldID, []House{
		{HouseID: 1, Name: "Old Shack", Rent: 100, Town: "Thais"},
	}))
	require.NoError(t, db.InsertHouses(otherWorldID, []House{
		{HouseID: 1, Name: "Beta Shack", Rent: 100, Town: "Carlin"},
	}))

	require.NoError(t, db.DeleteHouses(worldID))
	require.NoError(t, db.InsertHouses(worldID, []House{
		{HouseID: 2, Name: "New Villa", Rent: 5000, Size: 40, Town: "Thais", GuildHouse: true},
		{HouseID: 3, Name: "New Hut", Rent: 200, Size: 5, Town: "Thais"},
	}))

	var count int
	require.NoError(t, db.conn.QueryRow(
		"SELECT COUNT(*) FROM Houses WHERE WorldID = ?", worldID).Scan(&count))
	require.Equal(t, 2, count)

	// The other world's houses are untouched.
	require.NoError(t, db.conn.QueryRow(
		"SELECT COUNT(*) FROM Houses WHERE WorldID = ?", otherWorldID).Scan(&count))
	require.Equal(t, 1, count)
}

func TestExcludeFromAuctions(t *testing.T) {
	db := openTestDB(t)
	worldID := seedWorld(t, db, "Alpha", "127.0.0.1", 7172)
	seedAccount(t, db, 100, "a@b.c", make([]byte, 64))
	characterID := seedCharacter(t, db, worldID, 100, "Bad Bidder")

	ok, err := db.ExcludeFromAuctions(worldID, characterID, 7*86400, 55)
	require.NoError(t, err)
	require.True(t, ok)

	// World scoping applies to exclusions too.
	ok, err = db.ExcludeFromAuctions(worldID+1, characterID, 7*86400, 0)
	require.NoError(t, err)
	require.False(t, ok)
}
