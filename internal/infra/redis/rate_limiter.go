package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RateLimiter is a sliding-window counter shared by every worker. It exists to
// respect the publishing API's rolling ceiling, so the window must roll rather
// than reset: the check-and-record is one atomic Lua call over a sorted set of
// start timestamps.
type RateLimiter struct {
	client *Client
}

func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// KEYS[1] window zset, ARGV[1] now-micros, ARGV[2] window-micros, ARGV[3] limit,
// ARGV[4] member
var luaSlidingWindow = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, ARGV[1] - ARGV[2])
if redis.call("ZCARD", KEYS[1]) < tonumber(ARGV[3]) then
	redis.call("ZADD", KEYS[1], ARGV[1], ARGV[4])
	redis.call("PEXPIRE", KEYS[1], math.ceil(ARGV[2] / 1000))
	return 1
end
return 0`)

// Allow records one start against the window if capacity remains. It returns
// false when the limit is reached; the caller re-checks on the next tick.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now().UnixMicro()
	res, err := luaSlidingWindow.Run(ctx, r.client.cli, []string{key},
		now, window.Microseconds(), limit, startMember(now)).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// startMember builds the zset member for one recorded start. The timestamp
// alone would collapse two starts in the same microsecond into one entry, so
// a nonce keeps members distinct; the score still carries the timestamp.
func startMember(now int64) string {
	return strconv.FormatInt(now, 10) + "-" + uuid.NewString()
}

func JobStartKey(queue string) string {
	return fmt.Sprintf("rate_limit:%s:starts", queue)
}
