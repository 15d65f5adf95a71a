package connections

import (
	mapset "github.com/deckarep/golang-set"

	"github.com/query-manager/database"
	"github.com/query-manager/wire"
)

// Disciplinary error codes shared by the moderation family.
const (
	moderationNoCharacter       = 1
	moderationRightProhibits    = 2
	moderationAlreadyPresent    = 3
	moderationApprovedDuplicate = 4
)

// ipBanishmentDuration is how long an IP banishment lasts, in seconds.
const ipBanishmentDuration = 30 * 86400

// resolveTarget maps a character name to its id within the slot's world
// and checks the protection right, writing the error code on failure.
func (s *Server) resolveTarget(c *Connection, characterName string) (int, int) {
	characterID, err := s.db.GetCharacterID(c.WorldID, characterName)
	if err != nil {
		s.logQueryFailure(c, err)
		return 0, -1
	}
	if characterID == 0 {
		return 0, moderationNoCharacter
	}

	protected, err := s.db.GetCharacterRight(characterID, "NO_BANISHMENT")
	if err != nil {
		s.logQueryFailure(c, err)
		return 0, -1
	}
	if protected {
		return 0, moderationRightProhibits
	}

	return characterID, 0
}

func (s *Server) processSetNamelock(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	characterName := r.ReadString()
	ipAddress := r.Read32BE()
	gamemasterID := int(r.Read32())
	reason := r.ReadString()
	comment := r.ReadString()

	tx := s.db.NewTransaction("SetNamelock")
	defer tx.Close()
	if tx.Begin() != nil {
		s.sendQueryStatusFailed(c)
		return
	}

	characterID, errorCode := s.resolveTarget(c, characterName)
	if errorCode != 0 {
		s.replyModeration(c, errorCode)
		return
	}

	status, err := s.db.GetNamelockStatus(characterID)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}
	if status.Namelocked {
		if status.Approved {
			s.sendQueryStatusError(c, moderationApprovedDuplicate)
		} else {
			s.sendQueryStatusError(c, moderationAlreadyPresent)
		}
		return
	}

	if err := s.db.InsertNamelock(characterID, ipAddress, gamemasterID, reason, comment); err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}

	if tx.Commit() != nil {
		s.sendQueryStatusFailed(c)
		return
	}
	s.sendQueryStatusOk(c)
}

func (s *Server) processBanishAccount(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	characterName := r.ReadString()
	ipAddress := r.Read32BE()
	gamemasterID := int(r.Read32())
	reason := r.ReadString()
	comment := r.ReadString()
	finalWarning := r.ReadFlag()
	days := int(r.Read16())

	tx := s.db.NewTransaction("BanishAccount")
	defer tx.Close()
	if tx.Begin() != nil {
		s.sendQueryStatusFailed(c)
		return
	}

	characterID, errorCode := s.resolveTarget(c, characterName)
	if errorCode != 0 {
		s.replyModeration(c, errorCode)
		return
	}

	status, err := s.db.GetBanishmentStatus(characterID)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}
	if status.Banished {
		s.sendQueryStatusError(c, moderationAlreadyPresent)
		return
	}

	finalWarning, days = database.CompoundBanishment(status, finalWarning, days)
	duration := days * 86400
	banishmentID, err := s.db.InsertBanishment(characterID, ipAddress,
		gamemasterID, reason, comment, finalWarning, duration)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}
	if banishmentID == 0 {
		s.sendQueryStatusFailed(c)
		return
	}

	if tx.Commit() != nil {
		s.sendQueryStatusFailed(c)
		return
	}

	w := s.prepareResponse(c, wire.StatusOk)
	w.Write32(uint32(banishmentID))
	w.Write8(banishmentDaysByte(days))
	w.WriteFlag(finalWarning)
	s.sendResponse(c, w)
}

// banishmentDaysByte encodes the effective duration: 0xFF marks a
// permanent banishment, longer finite ones clamp at 0xFE.
func banishmentDaysByte(days int) uint8 {
	if days == 0 {
		return 0xFF
	}
	if days > 0xFE {
		return 0xFE
	}
	return uint8(days)
}

func (s *Server) processSetNotation(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	characterName := r.ReadString()
	ipAddress := r.Read32BE()
	gamemasterID := int(r.Read32())
	reason := r.ReadString()
	comment := r.ReadString()

	tx := s.db.NewTransaction("SetNotation")
	defer tx.Close()
	if tx.Begin() != nil {
		s.sendQueryStatusFailed(c)
		return
	}

	characterID, errorCode := s.resolveTarget(c, characterName)
	if errorCode != 0 {
		s.replyModeration(c, errorCode)
		return
	}

	if err := s.db.InsertNotation(characterID, ipAddress, gamemasterID, reason, comment); err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}

	if tx.Commit() != nil {
		s.sendQueryStatusFailed(c)
		return
	}
	s.sendQueryStatusOk(c)
}

func (s *Server) processReportStatement(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	reporterID := int(r.Read32())
	characterName := r.ReadString()
	banishmentID := int(r.Read32())
	reason := r.ReadString()
	comment := r.ReadString()
	reportedStatementID := int(r.Read32())
	numStatements := int(r.Read16())

	statements := make([]database.Statement, 0, numStatements)
	seen := mapset.NewThreadUnsafeSet()
	for i := 0; i < numStatements; i++ {
		statement := database.Statement{
			StatementID: int(r.Read32()),
			Timestamp:   int(r.Read32()),
			CharacterID: int(r.Read32()),
			Channel:     r.ReadString(),
			Text:        r.ReadString(),
		}
		if seen.Add(statement.StatementID) {
			statements = append(statements, statement)
		}
	}

	if r.Overflowed() {
		s.sendQueryStatusFailed(c)
		return
	}

	tx := s.db.NewTransaction("ReportStatement")
	defer tx.Close()
	if tx.Begin() != nil {
		s.sendQueryStatusFailed(c)
		return
	}

	characterID, err := s.db.GetCharacterID(c.WorldID, characterName)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}
	if characterID == 0 {
		s.sendQueryStatusError(c, moderationNoCharacter)
		return
	}

	// The designated statement must be in the list and must have been
	// said by the reported character.
	var reported *database.Statement
	for i := range statements {
		if statements[i].StatementID == reportedStatementID {
			reported = &statements[i]
			break
		}
	}
	if reported == nil || reported.CharacterID != characterID {
		s.sendQueryStatusFailed(c)
		return
	}

	if err := s.db.InsertStatements(c.WorldID, statements); err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}

	if err := s.db.InsertReportedStatement(c.WorldID, reported,
		banishmentID, reporterID, reason, comment); err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}

	if tx.Commit() != nil {
		s.sendQueryStatusFailed(c)
		return
	}
	s.sendQueryStatusOk(c)
}

func (s *Server) processBanishIPAddress(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	characterName := r.ReadString()
	ipAddress := r.Read32BE()
	gamemasterID := int(r.Read32())
	reason := r.ReadString()
	comment := r.ReadString()

	tx := s.db.NewTransaction("BanishIPAddress")
	defer tx.Close()
	if tx.Begin() != nil {
		s.sendQueryStatusFailed(c)
		return
	}

	characterID, errorCode := s.resolveTarget(c, characterName)
	if errorCode != 0 {
		s.replyModeration(c, errorCode)
		return
	}

	banished, err := s.db.IsIPBanished(ipAddress)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}
	if banished {
		s.sendQueryStatusError(c, moderationAlreadyPresent)
		return
	}

	if err := s.db.InsertIPBanishment(characterID, ipAddress, gamemasterID,
		reason, comment, ipBanishmentDuration); err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}

	if tx.Commit() != nil {
		s.sendQueryStatusFailed(c)
		return
	}
	s.sendQueryStatusOk(c)
}

func (s *Server) processExcludeFromAuctions(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	characterName := r.ReadString()
	ipAddress := r.Read32BE()
	gamemasterID := int(r.Read32())
	reason := r.ReadString()
	comment := r.ReadString()
	duration := int(r.Read32())
	banish := r.ReadFlag()

	tx := s.db.NewTransaction("ExcludeFromAuctions")
	defer tx.Close()
	if tx.Begin() != nil {
		s.sendQueryStatusFailed(c)
		return
	}

	characterID, errorCode := s.resolveTarget(c, characterName)
	if errorCode != 0 {
		s.replyModeration(c, errorCode)
		return
	}

	banishmentID := 0
	if banish {
		var err error
		banishmentID, err = s.db.InsertBanishment(characterID, ipAddress,
			gamemasterID, reason, comment, false, duration)
		if err != nil {
			s.sendQueryDataFailure(c, err)
			return
		}
		if banishmentID == 0 {
			s.sendQueryStatusFailed(c)
			return
		}
	}

	ok, err := s.db.ExcludeFromAuctions(c.WorldID, characterID, duration, banishmentID)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}
	if !ok {
		s.sendQueryStatusFailed(c)
		return
	}

	if tx.Commit() != nil {
		s.sendQueryStatusFailed(c)
		return
	}
	s.sendQueryStatusOk(c)
}

// replyModeration maps a resolveTarget result to the wire reply.
func (s *Server) replyModeration(c *Connection, errorCode int) {
	if errorCode < 0 {
		s.sendQueryStatusFailed(c)
	} else {
		s.sendQueryStatusError(c, errorCode)
	}
}
