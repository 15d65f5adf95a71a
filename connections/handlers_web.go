package connections

import (
	"github.com/query-manager/database"
	"github.com/query-manager/wire"
)

// Web/admin census surface. These queries are not bound to a world at
// login, so the ones that need a world read its name from the request.

func (s *Server) processGetKeptCharacters(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeWeb) {
		return
	}

	accountID := int(r.Read32())
	characters, err := s.db.GetKeptCharacterSummaries(accountID)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}
	s.sendCharacterSummaries(c, characters)
}

func (s *Server) processGetDeletedCharacters(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeWeb) {
		return
	}

	accountID := int(r.Read32())
	characters, err := s.db.GetDeletedCharacterSummaries(accountID)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}
	s.sendCharacterSummaries(c, characters)
}

func (s *Server) processGetHiddenCharacters(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeWeb) {
		return
	}

	accountID := int(r.Read32())
	characters, err := s.db.GetHiddenCharacterSummaries(accountID)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}
	s.sendCharacterSummaries(c, characters)
}

func (s *Server) sendCharacterSummaries(c *Connection, characters []database.CharacterSummary) {
	w := s.prepareResponse(c, wire.StatusOk)
	numCharacters := clampCount(len(characters))
	w.Write16(uint16(numCharacters))
	for i := 0; i < numCharacters; i++ {
		character := &characters[i]
		w.WriteString(character.Name)
		w.WriteString(character.World)
		w.Write16(uint16(character.Level))
		w.WriteString(character.Profession)
		w.WriteFlag(character.Online)
		w.WriteFlag(character.Deleted)
	}
	s.sendResponse(c, w)
}

func (s *Server) processDeleteOldCharacter(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeWeb) {
		return
	}

	accountID := int(r.Read32())
	characterName := r.ReadString()

	ok, err := s.db.DeleteOldCharacter(accountID, characterName)
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

// resolveWorldArgument maps a world name from the request to its id,
// zero meaning unknown.
func (s *Server) resolveWorldArgument(r *wire.ReadBuffer) (int, error) {
	worldName := r.ReadString()
	return s.db.GetWorldID(worldName)
}

func (s *Server) processCreateKillStatistics(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeWeb) {
		return
	}

	worldID, err := s.resolveWorldArgument(r)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}
	if worldID == 0 {
		s.sendQueryStatusFailed(c)
		return
	}

	stats, err := s.db.GetKillStatistics(worldID)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}

	w := s.prepareResponse(c, wire.StatusOk)
	numStats := clampCount(len(stats))
	w.Write16(uint16(numStats))
	for i := 0; i < numStats; i++ {
		w.WriteString(stats[i].RaceName)
		w.Write32(uint32(stats[i].TimesKilled))
		w.Write32(uint32(stats[i].PlayersKilled))
	}
	s.sendResponse(c, w)
}

func (s *Server) processGetPlayersOnline(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeWeb) {
		return
	}

	worldID, err := s.resolveWorldArgument(r)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}
	if worldID == 0 {
		s.sendQueryStatusFailed(c)
		return
	}

	characters, err := s.db.GetOnlineCharacters(worldID)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}

	w := s.prepareResponse(c, wire.StatusOk)
	numCharacters := clampCount(len(characters))
	w.Write16(uint16(numCharacters))
	for i := 0; i < numCharacters; i++ {
		w.WriteString(characters[i].Name)
		w.Write16(uint16(characters[i].Level))
		w.WriteString(characters[i].Profession)
	}
	s.sendResponse(c, w)
}

func (s *Server) processGetWorlds(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeWeb) {
		return
	}

	worlds, err := s.db.GetWorlds()
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}

	w := s.prepareResponse(c, wire.StatusOk)
	w.Write8(uint8(len(worlds)))
	for i := range worlds {
		world := &worlds[i]
		w.WriteString(world.Name)
		w.Write8(uint8(world.Type))
		w.Write16(uint16(world.NumPlayers))
		w.Write16(uint16(world.MaxPlayers))
		w.Write16(uint16(world.OnlineRecord))
		w.Write32(uint32(world.OnlineRecordTimestamp))
	}
	s.sendResponse(c, w)
}
