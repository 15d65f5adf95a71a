package connections

import (
	log "github.com/sirupsen/logrus"

	"github.com/query-manager/database"
	"github.com/query-manager/wire"
)

// maxCharacterIndexEntries bounds one LOAD_PLAYERS response.
const maxCharacterIndexEntries = 10000

// playerlistOffline is the character-count sentinel a game server sends
// when it is going offline: the published list is cleared and the
// online record is left untouched.
const playerlistOffline = 0xFFFF

func (s *Server) processLogCharacterDeath(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	characterID := int(r.Read32())
	level := int(r.Read16())
	offenderID := int(r.Read32())
	remark := r.ReadString()
	unjustified := r.ReadFlag()
	timestamp := int(r.Read32())

	ok, err := s.db.InsertCharacterDeath(c.WorldID, characterID, level,
		offenderID, remark, unjustified, timestamp)
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

func (s *Server) processAddBuddy(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	accountID := int(r.Read32())
	buddyID := int(r.Read32())

	if err := s.db.InsertBuddy(c.WorldID, accountID, buddyID); err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}
	s.sendQueryStatusOk(c)
}

func (s *Server) processRemoveBuddy(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	accountID := int(r.Read32())
	buddyID := int(r.Read32())

	if err := s.db.DeleteBuddy(c.WorldID, accountID, buddyID); err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}
	s.sendQueryStatusOk(c)
}

func (s *Server) processDecrementIsOnline(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	characterID := int(r.Read32())

	ok, err := s.db.DecrementIsOnline(c.WorldID, characterID)
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

func (s *Server) processClearIsOnline(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	numAffected, err := s.db.ClearIsOnline(c.WorldID)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}

	w := s.prepareResponse(c, wire.StatusOk)
	w.Write32(uint32(numAffected))
	s.sendResponse(c, w)
}

// processCreatePlayerlist atomically replaces the world's published
// player list and bumps the online record when exceeded.
func (s *Server) processCreatePlayerlist(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	numCharacters := int(r.Read16())
	offline := numCharacters == playerlistOffline

	var characters []database.OnlineCharacter
	if !offline {
		characters = make([]database.OnlineCharacter, 0, numCharacters)
		for i := 0; i < numCharacters; i++ {
			characters = append(characters, database.OnlineCharacter{
				Name:       r.ReadString(),
				Level:      int(r.Read16()),
				Profession: r.ReadString(),
			})
		}

		if r.Overflowed() {
			s.sendQueryStatusFailed(c)
			return
		}
	}

	tx := s.db.NewTransaction("CreatePlayerlist")
	defer tx.Close()
	if tx.Begin() != nil {
		s.sendQueryStatusFailed(c)
		return
	}

	if err := s.db.DeleteOnlineCharacters(c.WorldID); err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}

	newRecord := false
	if !offline {
		if err := s.db.InsertOnlineCharacters(c.WorldID, characters); err != nil {
			s.sendQueryDataFailure(c, err)
			return
		}

		var err error
		newRecord, err = s.db.CheckOnlineRecord(c.WorldID, len(characters))
		if err != nil {
			s.sendQueryDataFailure(c, err)
			return
		}
	}

	if tx.Commit() != nil {
		s.sendQueryStatusFailed(c)
		return
	}

	w := s.prepareResponse(c, wire.StatusOk)
	w.WriteFlag(newRecord)
	s.sendResponse(c, w)
}

func (s *Server) processLogKilledCreatures(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	numStats := int(r.Read16())
	stats := make([]database.KillStatistics, 0, numStats)
	for i := 0; i < numStats; i++ {
		stats = append(stats, database.KillStatistics{
			RaceName:      r.ReadString(),
			TimesKilled:   int(r.Read32()),
			PlayersKilled: int(r.Read32()),
		})
	}

	if r.Overflowed() {
		s.sendQueryStatusFailed(c)
		return
	}

	tx := s.db.NewTransaction("LogKilledCreatures")
	defer tx.Close()
	if tx.Begin() != nil {
		s.sendQueryStatusFailed(c)
		return
	}

	if err := s.db.MergeKillStatistics(c.WorldID, stats); err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}

	if tx.Commit() != nil {
		s.sendQueryStatusFailed(c)
		return
	}
	s.sendQueryStatusOk(c)
}

func (s *Server) processLoadPlayers(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	minimumCharacterID := int(r.Read32())

	entries, err := s.db.GetCharacterIndexEntries(c.WorldID,
		minimumCharacterID, maxCharacterIndexEntries)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}

	w := s.prepareResponse(c, wire.StatusOk)
	w.Write16(uint16(len(entries)))
	for i := range entries {
		w.Write32(uint32(entries[i].CharacterID))
		w.WriteString(entries[i].Name)
	}
	s.sendResponse(c, w)
}

// processLoadWorldConfig returns the bound world's configuration with
// its host resolved through the host cache. The address travels
// big-endian on the wire.
func (s *Server) processLoadWorldConfig(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	worldConfig, err := s.db.GetWorldConfig(c.WorldID)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}
	if worldConfig == nil {
		s.sendQueryStatusFailed(c)
		return
	}

	address, ok := s.hosts.Resolve(worldConfig.HostName)
	if !ok {
		log.Errorf("Failed to resolve world %d host name %q",
			c.WorldID, worldConfig.HostName)
		s.sendQueryStatusFailed(c)
		return
	}

	w := s.prepareResponse(c, wire.StatusOk)
	w.Write8(uint8(worldConfig.Type))
	w.Write8(uint8(worldConfig.RebootTime))
	w.Write32BE(address)
	w.Write16(uint16(worldConfig.Port))
	w.Write16(uint16(worldConfig.MaxPlayers))
	w.Write16(uint16(worldConfig.PremiumPlayerBuffer))
	w.Write16(uint16(worldConfig.MaxNewbies))
	w.Write16(uint16(worldConfig.PremiumNewbieBuffer))
	s.sendResponse(c, w)
}
