package redis

const (
	// replaceLedgerScript atomically replaces the ledger hash with the supplied
	// field/value pairs so a save never leaves stale fields behind.
	replaceLedgerScript = `
local ledger_key = KEYS[1]     -- kassist:ledger

redis.call('DEL', ledger_key)

if #ARGV > 0 then
  redis.call('HSET', ledger_key, unpack(ARGV))
end

return 'OK'
`
)
