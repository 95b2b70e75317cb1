package actuators

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/miradorstack/mirador-ews/internal/utils"
)

// RedisConfig holds connection parameters for the shared Redis instance.
type RedisConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	TLS          bool
}

// NewRedisClient connects to Redis and pings it so bad credentials or
// connectivity fail at startup.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	normaliseDurations(&cfg)

	opts := &redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func normaliseDurations(cfg *RedisConfig) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}
}

// RedisCmdable is the subset of *redis.Client the kill switch uses.
type RedisCmdable interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisKillSwitch stores the brownout reason under a key that request paths
// poll, and announces the change on a control channel.
type RedisKillSwitch struct {
	client  RedisCmdable
	key     string
	channel string
	now     func() time.Time
}

// NewRedisKillSwitch builds a kill switch. An empty channel disables the announcement.
func NewRedisKillSwitch(client RedisCmdable, key, channel string) *RedisKillSwitch {
	return &RedisKillSwitch{client: client, key: key, channel: channel, now: time.Now}
}

// EnableGlobalKillSwitch sets the flag. Re-enabling overwrites the previous reason.
func (k *RedisKillSwitch) EnableGlobalKillSwitch(ctx context.Context, reason string) error {
	if err := k.client.Set(ctx, k.key, reason, 0).Err(); err != nil {
		return utils.NewAppError("killswitch.Enable", "set "+k.key, err)
	}
	if k.channel == "" {
		return nil
	}
	msg := "enable:" + strconv.FormatInt(k.now().UnixMilli(), 10) + ":" + reason
	if err := k.client.Publish(ctx, k.channel, msg).Err(); err != nil {
		return utils.NewAppError("killswitch.Enable", "publish "+k.channel, err)
	}
	return nil
}

// Enabled reports whether the kill switch is set and the recorded reason.
func (k *RedisKillSwitch) Enabled(ctx context.Context) (bool, string, error) {
	reason, err := k.client.Get(ctx, k.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, "", nil
	}
	if err != nil {
		return false, "", utils.NewAppError("killswitch.Enabled", "get "+k.key, err)
	}
	return true, reason, nil
}

// Disable clears the flag. Disabling an unset switch is not an error.
func (k *RedisKillSwitch) Disable(ctx context.Context) error {
	if err := k.client.Del(ctx, k.key).Err(); err != nil {
		return utils.NewAppError("killswitch.Disable", "del "+k.key, err)
	}
	if k.channel == "" {
		return nil
	}
	msg := "disable:" + strconv.FormatInt(k.now().UnixMilli(), 10)
	if err := k.client.Publish(ctx, k.channel, msg).Err(); err != nil {
		return utils.NewAppError("killswitch.Disable", "publish "+k.channel, err)
	}
	return nil
}
