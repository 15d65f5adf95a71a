package connections

import (
	"crypto/subtle"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/query-manager/auth"
	"github.com/query-manager/database"
	"github.com/query-manager/wire"
)

// Failed-attempt rate limits, counted over the LoginAttempts audit rows.
const (
	accountAttemptLimit  = 10
	accountAttemptWindow = 5 * 60
	ipAttemptLimit       = 15
	ipAttemptWindow      = 30 * 60
)

// LOGIN_GAME result codes. Code 5 is intentionally absent; clients must
// not assume a contiguous range.
const (
	loginGameNoCharacter      = 1
	loginGameDeletedCharacter = 2
	loginGameWrongWorld       = 3
	loginGameNotInvited       = 4
	loginGameWrongPassword    = 6
	loginGameAccountAttempts  = 7
	loginGameDeletedAccount   = 8
	loginGameIPAttempts       = 9
	loginGameAccountBanished  = 10
	loginGameNamelocked       = 11
	loginGameIPBanished       = 12
	loginGameMultiClient      = 13
	loginGameGamemasterOnly   = 14
	loginGameAccountMismatch  = 15
)

// processLogin authorizes a connection. GAME applications bind to a
// world by name; an unknown world fails the login.
func (s *Server) processLogin(c *Connection, r *wire.ReadBuffer) {
	applicationType := int(r.Read8())
	password := r.ReadString()
	var worldName string
	if applicationType == wire.AppTypeGame {
		worldName = r.ReadString()
	}

	if subtle.ConstantTimeCompare([]byte(password), []byte(s.config.Password)) != 1 {
		log.Warnf("Invalid login attempt from %s", c.RemoteAddress)
		s.sendQueryStatusFailed(c)
		return
	}

	worldID := 0
	if applicationType == wire.AppTypeGame {
		var err error
		worldID, err = s.db.GetWorldID(worldName)
		if err != nil {
			s.sendQueryDataFailure(c, errors.Wrapf(err, "failed to look up world %q", worldName))
			return
		}
		if worldID == 0 {
			log.Warnf("Login from %s for unknown world %q", c.RemoteAddress, worldName)
			s.sendQueryStatusFailed(c)
			return
		}
	}

	log.Infof("Connection %s AUTHORIZED", c.RemoteAddress)
	c.Authorized = true
	c.ApplicationType = applicationType
	c.WorldID = worldID
	s.sendQueryStatusOk(c)
}

func (s *Server) processCheckAccountPassword(c *Connection, r *wire.ReadBuffer) {
	accountID := int(r.Read32())
	password := r.ReadString()

	account, err := s.db.GetAccountData(accountID)
	if err != nil {
		s.sendQueryDataFailure(c, err)
		return
	}
	if account == nil || account.Deleted {
		s.sendQueryStatusError(c, 1)
		return
	}
	if !auth.TestPassword(account.Auth, password) {
		s.sendQueryStatusError(c, 2)
		return
	}

	s.sendQueryStatusOk(c)
}

// processLoginAccount serves the login gateway: one SELECT-only
// transaction validating the account and collecting its character
// endpoints. The login-attempt audit row is inserted outside the
// transaction so it survives a rollback.
func (s *Server) processLoginAccount(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeLogin) {
		return
	}

	accountID := int(r.Read32())
	password := r.ReadString()
	ipAddress := r.Read32BE()

	type endpoint struct {
		name      string
		worldName string
		address   uint32
		port      int
	}

	var premiumDays int
	var endpoints []endpoint
	errorCode, failed := 0, true

	run := func() bool {
		tx := s.db.NewTransaction("LoginAccount")
		defer tx.Close()
		if tx.Begin() != nil {
			return false
		}

		account, err := s.db.GetAccountData(accountID)
		if err != nil {
			s.logQueryFailure(c, err)
			return false
		}
		if account == nil || account.Deleted {
			errorCode = 1
			return true
		}
		if !auth.TestPassword(account.Auth, password) {
			errorCode = 2
			return true
		}

		attempts, err := s.db.GetAccountFailedLoginAttempts(accountID, accountAttemptWindow)
		if err != nil {
			s.logQueryFailure(c, err)
			return false
		}
		if attempts >= accountAttemptLimit {
			errorCode = 3
			return true
		}

		attempts, err = s.db.GetIPAddressFailedLoginAttempts(ipAddress, ipAttemptWindow)
		if err != nil {
			s.logQueryFailure(c, err)
			return false
		}
		if attempts >= ipAttemptLimit {
			errorCode = 4
			return true
		}

		banished, err := s.db.IsAccountBanished(accountID)
		if err != nil {
			s.logQueryFailure(c, err)
			return false
		}
		if banished {
			errorCode = 5
			return true
		}

		ipBanished, err := s.db.IsIPBanished(ipAddress)
		if err != nil {
			s.logQueryFailure(c, err)
			return false
		}
		if ipBanished {
			errorCode = 6
			return true
		}

		characters, err := s.db.GetCharacterEndpoints(accountID)
		if err != nil {
			s.logQueryFailure(c, err)
			return false
		}
		for _, character := range characters {
			address, ok := s.hosts.Resolve(character.HostName)
			if !ok {
				log.Errorf("Failed to resolve world %q host name %q for character %q",
					character.WorldName, character.HostName, character.Name)
				continue
			}
			endpoints = append(endpoints, endpoint{
				name:      character.Name,
				worldName: character.WorldName,
				address:   address,
				port:      character.WorldPort,
			})
		}

		premiumDays = account.PremiumDays
		if tx.Commit() != nil {
			return false
		}

		failed = false
		return true
	}

	ok := run()

	// The audit row is always written, whatever the outcome above.
	if err := s.db.InsertLoginAttempt(accountID, ipAddress, failed); err != nil {
		log.Errorf("Failed to insert login attempt for account %d: %v", accountID, err)
	}

	if !ok {
		s.sendQueryStatusFailed(c)
		return
	}
	if errorCode != 0 {
		s.sendQueryStatusError(c, errorCode)
		return
	}

	w := s.prepareResponse(c, wire.StatusOk)
	w.Write16(uint16(premiumDays))
	w.Write8(uint8(len(endpoints)))
	for _, e := range endpoints {
		w.WriteString(e.name)
		w.WriteString(e.worldName)
		w.Write32BE(e.address)
		w.Write16(uint16(e.port))
	}
	s.sendResponse(c, w)
}

// processLoginGame runs the full game-login transaction: character and
// account validation, discipline checks, pending premium activation and
// the online-counter increment. The audit row is inserted outside the
// transaction.
func (s *Server) processLoginGame(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	accountID := int(r.Read32())
	characterName := r.ReadString()
	password := r.ReadString()
	ipAddress := r.Read32BE()

	type identity struct {
		characterID int
		sex         int
		guild       string
		rank        string
		title       string
	}

	var who identity
	var premiumDays int
	var premiumActivated bool
	var buddies []struct {
		id   int
		name string
	}
	var rights []string
	errorCode, failed := 0, true

	run := func() bool {
		tx := s.db.NewTransaction("LoginGame")
		defer tx.Close()
		if tx.Begin() != nil {
			return false
		}

		character, err := s.db.GetCharacterLoginData(characterName)
		if err != nil {
			s.logQueryFailure(c, err)
			return false
		}
		if character == nil {
			errorCode = loginGameNoCharacter
			return true
		}
		if character.Deleted {
			errorCode = loginGameDeletedCharacter
			return true
		}
		if character.WorldID != c.WorldID {
			errorCode = loginGameWrongWorld
			return true
		}

		worldConfig, err := s.db.GetWorldConfig(c.WorldID)
		if err != nil {
			s.logQueryFailure(c, err)
			return false
		}
		if worldConfig == nil {
			return false
		}
		if worldConfig.Type != database.WorldTypeNormal {
			invited, err := s.db.GetWorldInvitation(c.WorldID, character.CharacterID)
			if err != nil {
				s.logQueryFailure(c, err)
				return false
			}
			if !invited {
				errorCode = loginGameNotInvited
				return true
			}
		}

		account, err := s.db.GetAccountData(accountID)
		if err != nil {
			s.logQueryFailure(c, err)
			return false
		}

		// A missing account cannot match any password.
		if account == nil || !auth.TestPassword(account.Auth, password) {
			errorCode = loginGameWrongPassword
			return true
		}

		attempts, err := s.db.GetAccountFailedLoginAttempts(accountID, accountAttemptWindow)
		if err != nil {
			s.logQueryFailure(c, err)
			return false
		}
		if attempts >= accountAttemptLimit {
			errorCode = loginGameAccountAttempts
			return true
		}

		if account.Deleted {
			errorCode = loginGameDeletedAccount
			return true
		}

		attempts, err = s.db.GetIPAddressFailedLoginAttempts(ipAddress, ipAttemptWindow)
		if err != nil {
			s.logQueryFailure(c, err)
			return false
		}
		if attempts >= ipAttemptLimit {
			errorCode = loginGameIPAttempts
			return true
		}

		banished, err := s.db.IsAccountBanished(accountID)
		if err != nil {
			s.logQueryFailure(c, err)
			return false
		}
		if banished {
			errorCode = loginGameAccountBanished
			return true
		}

		namelocked, err := s.db.IsCharacterNamelocked(character.CharacterID)
		if err != nil {
			s.logQueryFailure(c, err)
			return false
		}
		if namelocked {
			errorCode = loginGameNamelocked
			return true
		}

		ipBanished, err := s.db.IsIPBanished(ipAddress)
		if err != nil {
			s.logQueryFailure(c, err)
			return false
		}
		if ipBanished {
			errorCode = loginGameIPBanished
			return true
		}

		online, err := s.db.GetAccountOnlineCharacters(accountID)
		if err != nil {
			s.logQueryFailure(c, err)
			return false
		}
		if online > 0 {
			multiClient, err := s.db.GetCharacterRight(character.CharacterID, "ALLOW_MULTICLIENT")
			if err != nil {
				s.logQueryFailure(c, err)
				return false
			}
			if !multiClient {
				errorCode = loginGameMultiClient
				return true
			}
		}

		if worldConfig.Type == database.WorldTypeTest {
			gamemaster, err := s.db.GetCharacterRight(character.CharacterID, "GAMEMASTER")
			if err != nil {
				s.logQueryFailure(c, err)
				return false
			}
			if !gamemaster {
				errorCode = loginGameGamemasterOnly
				return true
			}
		}

		if character.AccountID != accountID {
			errorCode = loginGameAccountMismatch
			return true
		}

		if account.PremiumDays == 0 && account.PendingPremiumDays > 0 {
			if err := s.db.ActivatePendingPremiumDays(accountID); err != nil {
				s.logQueryFailure(c, err)
				return false
			}
			premiumActivated = true
			account, err = s.db.GetAccountData(accountID)
			if err != nil {
				s.logQueryFailure(c, err)
				return false
			}
			if account == nil {
				return false
			}
		}
		premiumDays = account.PremiumDays

		if _, err := s.db.IncrementIsOnline(c.WorldID, character.CharacterID); err != nil {
			s.logQueryFailure(c, err)
			return false
		}

		accountBuddies, err := s.db.GetBuddies(c.WorldID, accountID)
		if err != nil {
			s.logQueryFailure(c, err)
			return false
		}
		for _, buddy := range accountBuddies {
			buddies = append(buddies, struct {
				id   int
				name string
			}{buddy.CharacterID, buddy.Name})
		}

		rights, err = s.db.GetCharacterRights(character.CharacterID)
		if err != nil {
			s.logQueryFailure(c, err)
			return false
		}

		who = identity{
			characterID: character.CharacterID,
			sex:         character.Sex,
			guild:       character.Guild,
			rank:        character.Rank,
			title:       character.Title,
		}
		if tx.Commit() != nil {
			return false
		}

		failed = false
		return true
	}

	ok := run()

	if err := s.db.InsertLoginAttempt(accountID, ipAddress, failed); err != nil {
		log.Errorf("Failed to insert login attempt for account %d: %v", accountID, err)
	}

	if !ok {
		s.sendQueryStatusFailed(c)
		return
	}
	if errorCode != 0 {
		s.sendQueryStatusError(c, errorCode)
		return
	}

	w := s.prepareResponse(c, wire.StatusOk)
	w.Write32(uint32(who.characterID))
	w.Write8(uint8(who.sex))
	w.WriteString(who.guild)
	w.WriteString(who.rank)
	w.WriteString(who.title)
	w.Write16(uint16(premiumDays))
	w.WriteFlag(premiumActivated)
	w.Write16(uint16(len(buddies)))
	for _, buddy := range buddies {
		w.Write32(uint32(buddy.id))
		w.WriteString(buddy.name)
	}
	w.Write8(uint8(len(rights)))
	for _, right := range rights {
		w.WriteString(right)
	}
	s.sendResponse(c, w)
}

// processLogoutGame persists end-of-session state and drops the online
// reference in one update.
func (s *Server) processLogoutGame(c *Connection, r *wire.ReadBuffer) {
	if !s.requireApplicationType(c, wire.AppTypeGame) {
		return
	}

	characterID := int(r.Read32())
	level := int(r.Read16())
	profession := r.ReadString()
	residence := r.ReadString()
	lastLoginTime := int(r.Read32())
	tutorActivities := int(r.Read16())

	tx := s.db.NewTransaction("LogoutGame")
	defer tx.Close()
	if tx.Begin() != nil {
		s.sendQueryStatusFailed(c)
		return
	}

	ok, err := s.db.LogoutCharacter(c.WorldID, characterID, level,
		profession, residence, lastLoginTime, tutorActivities)
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
