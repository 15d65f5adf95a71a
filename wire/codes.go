package wire

// Application types a connection may authorize as.
const (
	AppTypeGame  = 1
	AppTypeLogin = 2
	AppTypeWeb   = 3
)

// Query status byte. An ERROR status is followed by one byte whose
// meaning is per-query; FAILED carries no further payload.
const (
	StatusOk     = 0
	StatusError  = 1
	StatusFailed = 3
)

// Query codes. Gaps in the numbering are intentional and downstream
// clients must not assume a contiguous range.
const (
	QueryLogin                = 0
	QueryCheckAccountPassword = 10
	QueryLoginAccount         = 11
	QueryLoginAdmin           = 12
	QueryLoginGame            = 20
	QueryLogoutGame           = 21
	QuerySetNamelock          = 23
	QueryBanishAccount        = 25
	QuerySetNotation          = 26
	QueryReportStatement      = 27
	QueryBanishIPAddress      = 28
	QueryLogCharacterDeath    = 29
	QueryAddBuddy             = 30
	QueryRemoveBuddy          = 31
	QueryDecrementIsOnline    = 32
	QueryFinishAuctions       = 33
	QueryTransferHouses       = 35
	QueryEvictFreeAccounts    = 36
	QueryEvictDeletedChars    = 37
	QueryEvictExGuildleaders  = 38
	QueryInsertHouseOwner     = 39
	QueryUpdateHouseOwner     = 40
	QueryDeleteHouseOwner     = 41
	QueryGetHouseOwners       = 42
	QueryGetAuctions          = 43
	QueryStartAuction         = 44
	QueryInsertHouses         = 45
	QueryClearIsOnline        = 46
	QueryCreatePlayerlist     = 47
	QueryLogKilledCreatures   = 48
	QueryLoadPlayers          = 50
	QueryExcludeFromAuctions  = 51
	QueryCancelHouseTransfer  = 52
	QueryLoadWorldConfig      = 53
	QueryGetKeptCharacters    = 200
	QueryGetDeletedCharacters = 201
	QueryDeleteOldCharacter   = 202
	QueryGetHiddenCharacters  = 203
	QueryCreateHighscores     = 204
	QueryCreateCensus         = 205
	QueryCreateKillStatistics = 206
	QueryGetPlayersOnline     = 207
	QueryGetWorlds            = 208
	QueryGetServerLoad        = 209
	QueryInsertPaymentDataOld = 210
	QueryAddPaymentOld        = 211
	QueryCancelPaymentOld     = 212
	QueryInsertPaymentDataNew = 213
	QueryAddPaymentNew        = 214
	QueryCancelPaymentNew     = 215
)
