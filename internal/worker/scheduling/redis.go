package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRegistryKey = "scheduler:jobs"
	defaultTriggersKey = "scheduler:triggers"
)

// RedisCapability keeps job registrations in a hash and pending triggers in a
// sorted set scored by fire time. A registration outlives its trigger until it
// is removed, so Exists stays true while the job runs.
type RedisCapability struct {
	client      redis.UniversalClient
	registryKey string
	triggersKey string
}

// NewRedisCapability builds a capability on an existing client. An empty
// namespace uses the default keys.
func NewRedisCapability(client redis.UniversalClient, namespace string) *RedisCapability {
	registry, triggers := defaultRegistryKey, defaultTriggersKey
	if namespace != "" {
		registry = namespace + ":" + registry
		triggers = namespace + ":" + triggers
	}
	return &RedisCapability{
		client:      client,
		registryKey: registry,
		triggersKey: triggers,
	}
}

// Exists reports whether key is registered.
func (r *RedisCapability) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.HExists(ctx, r.registryKey, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check scheduler key: %w", err)
	}
	return ok, nil
}

// Submit registers key with its payload and arms its trigger.
func (r *RedisCapability) Submit(ctx context.Context, key string, payload Payload, trigger Trigger) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.registryKey, key, body)
	pipe.ZAdd(ctx, r.triggersKey, redis.Z{Score: float64(trigger.FireAt.UnixMilli()), Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to submit scheduler key: %w", err)
	}
	return nil
}

// Remove drops the registration and any pending trigger of key. It reports
// whether a registration existed.
func (r *RedisCapability) Remove(ctx context.Context, key string) (bool, error) {
	pipe := r.client.TxPipeline()
	removed := pipe.HDel(ctx, r.registryKey, key)
	pipe.ZRem(ctx, r.triggersKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to remove scheduler key: %w", err)
	}
	return removed.Val() > 0, nil
}

// Acquire pops the earliest trigger due at now. found is false when nothing is due.
func (r *RedisCapability) Acquire(ctx context.Context, now time.Time) (payload Payload, found bool, err error) {
	res, err := acquireScript.Run(ctx, r.client, []string{r.triggersKey, r.registryKey}, now.UnixMilli()).Result()
	if err == redis.Nil {
		return Payload{}, false, nil
	}
	if err != nil {
		return Payload{}, false, fmt.Errorf("failed to acquire trigger: %w", err)
	}

	body, ok := res.(string)
	if !ok {
		return Payload{}, false, fmt.Errorf("unexpected type from acquire script: %T", res)
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return Payload{}, false, fmt.Errorf("failed to parse trigger payload: %w", err)
	}
	return payload, true, nil
}

// Rearm restores the trigger of a registered key whose trigger was already
// popped, e.g. a job that was in flight when the process stopped. An armed
// trigger keeps its fire time. It reports whether a trigger was added.
func (r *RedisCapability) Rearm(ctx context.Context, key string, at time.Time) (bool, error) {
	added, err := rearmScript.Run(ctx, r.client, []string{r.triggersKey, r.registryKey}, key, at.UnixMilli()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to rearm trigger: %w", err)
	}
	return added > 0, nil
}

// Pending returns how many triggers are armed.
func (r *RedisCapability) Pending(ctx context.Context) (int64, error) {
	return r.client.ZCard(ctx, r.triggersKey).Result()
}

// Triggers whose registration was removed in the meantime are dropped and the
// next due trigger is tried.
var acquireScript = redis.NewScript(`
while true do
  local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
  if #due == 0 then
    return nil
  end
  redis.call('ZREM', KEYS[1], due[1])
  local payload = redis.call('HGET', KEYS[2], due[1])
  if payload then
    return payload
  end
end
`)

var rearmScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[2], ARGV[1]) == 0 then
  return 0
end
return redis.call('ZADD', KEYS[1], 'NX', ARGV[2], ARGV[1])
`)
