package redis

const (
	// releaseLockScript deletes the lock only while it still holds our token
	releaseLockScript = `
local lock_key = KEYS[1]     -- worklog:lock
local token = ARGV[1]

if redis.call('GET', lock_key) == token then
  return redis.call('DEL', lock_key)
end

return 0
`
)
