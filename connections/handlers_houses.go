package connections

import (
	"github.com/query-manager/database"
	"github.com/query-manager/wire"
)

func (s *Server) processFinishAuctions(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	auctions, err := s.db.FinishHouseAuctions(c.WorldID)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}

	w := s.prepareResponse(c, wire.StatusOk)
	numAuctions := clampCount(len(auctions))
	w.Write16(uint16(numAuctions))
	for i := 0; i < numAuctions; i++ {
		auction := &auctions[i]
		w.Write16(uint16(auction.HouseID))
		w.Write32(uint32(auction.BidderID))
		w.WriteString(auction.BidderName)
		w.Write32(uint32(auction.BidAmount))
		w.Write32(uint32(auction.FinishTime))
	}
	s.sendResponse(c, w)
}

func (s *Server) processTransferHouses(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	transfers, err := s.db.FinishHouseTransfers(c.WorldID)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}

	w := s.prepareResponse(c, wire.StatusOk)
	numTransfers := clampCount(len(transfers))
	w.Write16(uint16(numTransfers))
	for i := 0; i < numTransfers; i++ {
		transfer := &transfers[i]
		w.Write16(uint16(transfer.HouseID))
		w.Write32(uint32(transfer.NewOwnerID))
		w.WriteString(transfer.NewOwnerName)
		w.Write32(uint32(transfer.Price))
	}
	s.sendResponse(c, w)
}

func (s *Server) processEvictFreeAccounts(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	evictions, err := s.db.GetFreeAccountEvictions(c.WorldID)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}
	s.sendEvictions(c, evictions)
}

func (s *Server) processEvictDeletedCharacters(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	evictions, err := s.db.GetDeletedCharacterEvictions(c.WorldID)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}
	s.sendEvictions(c, evictions)
}

// processEvictExGuildleaders is inverted relative to the other eviction
// queries: the client supplies candidate pairs and the service returns
// those whose owner is no longer a guild leader.
func (s *Server) processEvictExGuildleaders(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	numCandidates := int(r.Read16())
	candidates := make([]database.HouseEviction, 0, numCandidates)
	for i := 0; i < numCandidates; i++ {
		candidates = append(candidates, database.HouseEviction{
			HouseID: int(r.Read16()),
			OwnerID: int(r.Read32()),
		})
	}

	if r.Overflowed() {
		s.sendQueryStatusFailed(c)
		return
	}

	var evictions []database.HouseEviction
	for _, candidate := range candidates {
		leader, err := s.db.GetGuildLeaderStatus(c.WorldID, candidate.OwnerID)
		if err != nil {
			s.sendQueryDataFailure(c, err)
			return
		}
		if !leader {
			evictions = append(evictions, candidate)
		}
	}
	s.sendEvictions(c, evictions)
}

func (s *Server) sendEvictions(c *Connection, evictions []database.HouseEviction) {
	w := s.prepareResponse(c, wire.StatusOk)
	numEvictions := clampCount(len(evictions))
	w.Write16(uint16(numEvictions))
	for i := 0; i < numEvictions; i++ {
		w.Write16(uint16(evictions[i].HouseID))
		w.Write32(uint32(evictions[i].OwnerID))
	}
	s.sendResponse(c, w)
}

func (s *Server) processInsertHouseOwner(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	houseID := int(r.Read16())
	ownerID := int(r.Read32())
	paidUntil := int(r.Read32())

	if err := s.db.InsertHouseOwner(c.WorldID, houseID, ownerID, paidUntil); err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}
	s.sendQueryStatusOk(c)
}

func (s *Server) processUpdateHouseOwner(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	houseID := int(r.Read16())
	ownerID := int(r.Read32())
	paidUntil := int(r.Read32())

	ok, err := s.db.UpdateHouseOwner(c.WorldID, houseID, ownerID, paidUntil)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}
	if !ok {
		s.sendQueryStatusFailed(c)
		return
	}
	s.sendQueryStatusOk(c)
}

func (s *Server) processDeleteHouseOwner(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	houseID := int(r.Read16())

	ok, err := s.db.DeleteHouseOwner(c.WorldID, houseID)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}
	if !ok {
		s.sendQueryStatusFailed(c)
		return
	}
	s.sendQueryStatusOk(c)
}

func (s *Server) processGetHouseOwners(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	owners, err := s.db.GetHouseOwners(c.WorldID)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}

	w := s.prepareResponse(c, wire.StatusOk)
	numOwners := clampCount(len(owners))
	w.Write16(uint16(numOwners))
	for i := 0; i < numOwners; i++ {
		owner := &owners[i]
		w.Write16(uint16(owner.HouseID))
		w.Write32(uint32(owner.OwnerID))
		w.WriteString(owner.OwnerName)
		w.Write32(uint32(owner.PaidUntil))
	}
	s.sendResponse(c, w)
}

func (s *Server) processGetAuctions(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	houseIDs, err := s.db.GetHouseAuctions(c.WorldID)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}

	w := s.prepareResponse(c, wire.StatusOk)
	numAuctions := clampCount(len(houseIDs))
	w.Write16(uint16(numAuctions))
	for i := 0; i < numAuctions; i++ {
		w.Write16(uint16(houseIDs[i]))
	}
	s.sendResponse(c, w)
}

func (s *Server) processStartAuction(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	houseID := int(r.Read16())

	if err := s.db.StartHouseAuction(c.WorldID, houseID); err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}
	s.sendQueryStatusOk(c)
}

// processInsertHouses replaces the world's house definitions wholesale:
// delete everything, bulk insert the new set, all in one transaction.
func (s *Server) processInsertHouses(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	numHouses := int(r.Read16())
	houses := make([]database.House, 0, numHouses)
	for i := 0; i < numHouses; i++ {
		houses = append(houses, database.House{
			HouseID:     int(r.Read16()),
			Name:        r.ReadString(),
			Rent:        int(r.Read32()),
			Description: r.ReadString(),
			Size:        int(r.Read16()),
			PositionX:   int(r.Read16()),
			PositionY:   int(r.Read16()),
			PositionZ:   int(r.Read8()),
			Town:        r.ReadString(),
			GuildHouse:  r.ReadFlag(),
		})
	}

	if r.Overflowed() {
		s.sendQueryStatusFailed(c)
		return
	}

	tx := s.db.NewTransaction("InsertHouses")
	defer tx.Close()
	if tx.Begin() != nil {
		s.sendQueryStatusFailed(c)
		return
	}

	if err := s.db.DeleteHouses(c.WorldID); err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}

	if err := s.db.InsertHouses(c.WorldID, houses); err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}

	if tx.Commit() != nil {
		s.sendQueryStatusFailed(c)
		return
	}
	s.sendQueryStatusOk(c)
}

// processCancelHouseTransfer consumes no arguments and acknowledges.
// Whether it should also delete a pending transfer row is undefined by
// the upstream applications.
func (s *Server) processCancelHouseTransfer(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}
	s.sendQueryStatusOk(c)
}

// clampCount bounds a list length to what a 16-bit count field can
// carry.
func clampCount(n int) int {
	if n > 0xFFFF {
		return 0xFFFF
	}
	return n
}
