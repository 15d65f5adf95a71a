package connections

import (
	log "github.com/sirupsen/logrus"

	"github.com/query-manager/wire"
)

// prepareResponse starts a response frame in the slot's buffer: a
// placeholder 16-bit length followed by the status byte. The handler
// appends its payload and hands the buffer to sendResponse.
func (s *Server) prepareResponse(c *Connection, status int) *wire.WriteBuffer {
	if c.State != StateProcessing {
		log.Errorf("Connection %s is not processing query (State: %d)",
			c.RemoteAddress, c.State)
		c.close()
		return wire.NewWriteBuffer(nil)
	}

	w := wire.NewWriteBuffer(c.Buffer)
	w.Write16(0)
	w.Write8(uint8(status))
	return w
}

// sendResponse patches the real payload size over the placeholder,
// upgrading to the 32-bit extended form when the payload outgrew 16
// bits, and turns the slot around to WRITING. An overflowed buffer
// closes the connection instead of sending a truncated reply.
func (s *Server) sendResponse(c *Connection, w *wire.WriteBuffer) {
	if c.State != StateProcessing {
		log.Errorf("Connection %s is not processing query (State: %d)",
			c.RemoteAddress, c.State)
		c.close()
		return
	}

	payloadSize := w.Position() - 2
	if payloadSize < 0xFFFF {
		w.Rewrite16(0, uint16(payloadSize))
	} else {
		w.Rewrite16(0, 0xFFFF)
		w.Insert32(2, uint32(payloadSize))
	}

	if w.Overflowed() {
		log.Errorf("Write buffer overflowed when writing response to %s",
			c.RemoteAddress)
		c.close()
		return
	}

	c.State = StateWriting
	c.RWSize = w.Position()
	c.RWPosition = 0
}

func (s *Server) sendQueryStatusOk(c *Connection) {
	w := s.prepareResponse(c, wire.StatusOk)
	s.sendResponse(c, w)
}

func (s *Server) sendQueryStatusError(c *Connection, errorCode int) {
	w := s.prepareResponse(c, wire.StatusError)
	w.Write8(uint8(errorCode))
	s.sendResponse(c, w)
}

func (s *Server) sendQueryStatusFailed(c *Connection) {
	w := s.prepareResponse(c, wire.StatusFailed)
	s.sendResponse(c, w)
}

// logQueryFailure records a data-layer failure. Every branch that
// replies FAILED because of an underlying database error goes through
// here or sendQueryDataFailure so the error is never swallowed.
func (s *Server) logQueryFailure(c *Connection, err error) {
	log.Errorf("Query from %s failed: %v", c.RemoteAddress, err)
}

// sendQueryDataFailure logs a data-layer failure and replies FAILED.
func (s *Server) sendQueryDataFailure(c *Connection, err error) {
	s.logQueryFailure(c, err)
	s.sendQueryStatusFailed(c)
}

// requireApplicationType gates a query on the connection's application
// type, replying FAILED on mismatch.
func (s *Server) requireApplicationType(c *Connection, applicationType int) bool {
	if c.ApplicationType != applicationType {
		s.sendQueryStatusFailed(c)
		return false
	}
	return true
}

// processQuery decodes the query code and runs the handler. An
// unauthorized slot may only send LOGIN; anything else closes it.
func (s *Server) processQuery(c *Connection) {
	r := wire.NewReadBuffer(c.Buffer[:c.RWSize])
	query := int(r.Read8())
	if !c.Authorized {
		if query == wire.QueryLogin {
			s.processLogin(c, r)
		} else {
			log.Errorf("Expected login query from %s", c.RemoteAddress)
			c.close()
		}
		return
	}

	switch query {
	case wire.QueryCheckAccountPassword:
		s.processCheckAccountPassword(c, r)
	case wire.QueryLoginAccount:
		s.processLoginAccount(c, r)
	case wire.QueryLoginGame:
		s.processLoginGame(c, r)
	case wire.QueryLogoutGame:
		s.processLogoutGame(c, r)
	case wire.QuerySetNamelock:
		s.processSetNamelock(c, r)
	case wire.QueryBanishAccount:
		s.processBanishAccount(c, r)
	case wire.QuerySetNotation:
		s.processSetNotation(c, r)
	case wire.QueryReportStatement:
		s.processReportStatement(c, r)
	case wire.QueryBanishIPAddress:
		s.processBanishIPAddress(c, r)
	case wire.QueryLogCharacterDeath:
		s.processLogCharacterDeath(c, r)
	case wire.QueryAddBuddy:
		s.processAddBuddy(c, r)
	case wire.QueryRemoveBuddy:
		s.processRemoveBuddy(c, r)
	case wire.QueryDecrementIsOnline:
		s.processDecrementIsOnline(c, r)
	case wire.QueryFinishAuctions:
		s.processFinishAuctions(c, r)
	case wire.QueryTransferHouses:
		s.processTransferHouses(c, r)
	case wire.QueryEvictFreeAccounts:
		s.processEvictFreeAccounts(c, r)
	case wire.QueryEvictDeletedChars:
		s.processEvictDeletedCharacters(c, r)
	case wire.QueryEvictExGuildleaders:
		s.processEvictExGuildleaders(c, r)
	case wire.QueryInsertHouseOwner:
		s.processInsertHouseOwner(c, r)
	case wire.QueryUpdateHouseOwner:
		s.processUpdateHouseOwner(c, r)
	case wire.QueryDeleteHouseOwner:
		s.processDeleteHouseOwner(c, r)
	case wire.QueryGetHouseOwners:
		s.processGetHouseOwners(c, r)
	case wire.QueryGetAuctions:
		s.processGetAuctions(c, r)
	case wire.QueryStartAuction:
		s.processStartAuction(c, r)
	case wire.QueryInsertHouses:
		s.processInsertHouses(c, r)
	case wire.QueryClearIsOnline:
		s.processClearIsOnline(c, r)
	case wire.QueryCreatePlayerlist:
		s.processCreatePlayerlist(c, r)
	case wire.QueryLogKilledCreatures:
		s.processLogKilledCreatures(c, r)
	case wire.QueryLoadPlayers:
		s.processLoadPlayers(c, r)
	case wire.QueryExcludeFromAuctions:
		s.processExcludeFromAuctions(c, r)
	case wire.QueryCancelHouseTransfer:
		s.processCancelHouseTransfer(c, r)
	case wire.QueryLoadWorldConfig:
		s.processLoadWorldConfig(c, r)
	case wire.QueryGetKeptCharacters:
		s.processGetKeptCharacters(c, r)
	case wire.QueryGetDeletedCharacters:
		s.processGetDeletedCharacters(c, r)
	case wire.QueryDeleteOldCharacter:
		s.processDeleteOldCharacter(c, r)
	case wire.QueryGetHiddenCharacters:
		s.processGetHiddenCharacters(c, r)
	case wire.QueryCreateKillStatistics:
		s.processCreateKillStatistics(c, r)
	case wire.QueryGetPlayersOnline:
		s.processGetPlayersOnline(c, r)
	case wire.QueryGetWorlds:
		s.processGetWorlds(c, r)
	case wire.QueryLoginAdmin, wire.QueryCreateHighscores, wire.QueryCreateCensus,
		wire.QueryGetServerLoad, wire.QueryInsertPaymentDataOld, wire.QueryAddPaymentOld,
		wire.QueryCancelPaymentOld, wire.QueryInsertPaymentDataNew, wire.QueryAddPaymentNew,
		wire.QueryCancelPaymentNew:
		// Behavior undefined by the upstream applications.
		s.sendQueryStatusFailed(c)
	default:
		log.Errorf("Unknown query %d from %s", query, c.RemoteAddress)
		s.sendQueryStatusFailed(c)
	}
}
