package catchup

import "errors"

var (
	ErrInvalidStoreType   = errors.New("invalid catch-up store type: must be 'memory' or 'redis'")
	ErrMissingRedisClient = errors.New("redis catch-up store requires a redis client")
)
