package database

import "github.com/pkg/errors"

var (
	errTxRunning    = errors.New("transaction already running")
	errTxNotRunning = errors.New("transaction not running")
)

// World is a fleet listing row.
type World struct {
	Name                  string
	Type                  int
	NumPlayers            int
	MaxPlayers            int
	OnlineRecord          int
	OnlineRecordTimestamp int
}

// World types. Private and test worlds require an invitation to enter.
const (
	WorldTypeNormal  = 0
	WorldTypePrivate = 1
	WorldTypeTest    = 2
)

// WorldConfig is the game-server configuration of one world. HostName
// still needs resolving through the host cache.
type WorldConfig struct {
	Type                int
	RebootTime          int
	HostName            string
	Port                int
	MaxPlayers          int
	PremiumPlayerBuffer int
	MaxNewbies          int
	PremiumNewbieBuffer int
}

// Account mirrors an Accounts row. Auth is the 64-byte hash+salt blob.
type Account struct {
	AccountID          int
	Email              string
	Auth               []byte
	PremiumDays        int
	PendingPremiumDays int
	Deleted            bool
}

// CharacterLoginData is everything LOGIN_GAME needs about a character.
type CharacterLoginData struct {
	WorldID     int
	CharacterID int
	AccountID   int
	Name        string
	Sex         int
	Guild       string
	Rank        string
	Title       string
	Deleted     bool
}

// CharacterSummary is a census row for the web/admin surfaces.
type CharacterSummary struct {
	Name       string
	World      string
	Level      int
	Profession string
	Online     bool
	Deleted    bool
}

// CharacterEndpoint tells a login gateway where a character plays.
type CharacterEndpoint struct {
	Name      string
	WorldName string
	HostName  string
	WorldPort int
}

// AccountBuddy is one buddy-list entry.
type AccountBuddy struct {
	CharacterID int
	Name        string
}

// CharacterIndexEntry is one row of the character index.
type CharacterIndexEntry struct {
	CharacterID int
	Name        string
}

// OnlineCharacter is one row of a world's published player list.
type OnlineCharacter struct {
	Name       string
	Level      int
	Profession string
}

// HouseAuction is a matured auction drained by FINISH_AUCTIONS.
type HouseAuction struct {
	HouseID    int
	BidderID   int
	BidderName string
	BidAmount  int
	FinishTime int
}

// HouseTransfer is a matured transfer drained by TRANSFER_HOUSES.
type HouseTransfer struct {
	HouseID      int
	NewOwnerID   int
	NewOwnerName string
	Price        int
}

// HouseEviction pairs a house with the owner to evict.
type HouseEviction struct {
	HouseID int
	OwnerID int
}

// HouseOwner is one row of the housing ownership table.
type HouseOwner struct {
	HouseID   int
	OwnerID   int
	OwnerName string
	PaidUntil int
}

// House is a housing definition row, bulk-replaced by INSERT_HOUSES.
type House struct {
	HouseID     int
	Name        string
	Rent        int
	Description string
	Size        int
	PositionX   int
	PositionY   int
	PositionZ   int
	Town        string
	GuildHouse  bool
}

// KillStatistics aggregates kills per race.
type KillStatistics struct {
	RaceName      string
	TimesKilled   int
	PlayersKilled int
}

// Statement is one chat statement referenced by a report.
type Statement struct {
	StatementID int
	Timestamp   int
	CharacterID int
	Channel     string
	Text        string
}

// BanishmentStatus summarizes an account's banishment history.
type BanishmentStatus struct {
	Banished      bool
	FinalWarning  bool
	TimesBanished int
}

// NamelockStatus reports whether a character is namelocked and whether
// a new name was already approved.
type NamelockStatus struct {
	Namelocked bool
	Approved   bool
}
