package database

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"trade-agent/internal/ledger"
)

const (
	riskStateKey   = "agent:risk_state"
	positionsKey   = "agent:positions"
	cooldownsKey   = "agent:cooldowns"
	mirrorTTL      = 24 * time.Hour
	redisOpTimeout = 2 * time.Second
)

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// StateMirror mirrors loop state into Redis for dashboards and other
// read-only consumers. It is eventually consistent by design: Postgres
// is the durable record and the in-memory ledger is the intra-session
// truth. When Redis is down the mirror degrades to process memory and
// keeps serving reads rather than failing the loop.
type StateMirror struct {
	mu sync.RWMutex

	log    zerolog.Logger
	client *redis.Client

	// in-memory fallback, also the write-through cache
	riskState []byte
	positions []byte
	cooldowns []byte
}

// NewStateMirror connects to Redis; a failed ping degrades to the
// in-memory fallback instead of erroring.
func NewStateMirror(cfg RedisConfig, log zerolog.Logger) *StateMirror {
	m := &StateMirror{log: log}
	if !cfg.Enabled {
		log.Info().Msg("redis mirror disabled, using in-memory state only")
		return m
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unreachable, falling back to in-memory mirror")
		_ = client.Close()
		return m
	}

	log.Info().Str("addr", cfg.Addr).Msg("redis state mirror connected")
	m.client = client
	return m
}

// Close releases the Redis connection.
func (m *StateMirror) Close() {
	if m.client != nil {
		_ = m.client.Close()
	}
}

// MirrorRiskState publishes the risk state snapshot.
func (m *StateMirror) MirrorRiskState(ctx context.Context, s RiskStateRecord) {
	m.mirror(ctx, riskStateKey, s, &m.riskState)
}

// RiskState reads back the last mirrored risk state; ok is false when
// nothing has been mirrored yet.
func (m *StateMirror) RiskState(ctx context.Context) (RiskStateRecord, bool) {
	var s RiskStateRecord
	ok := m.read(ctx, riskStateKey, &m.riskState, &s)
	return s, ok
}

// MirrorPositions publishes the active position set.
func (m *StateMirror) MirrorPositions(ctx context.Context, positions []ledger.Position) {
	m.mirror(ctx, positionsKey, positions, &m.positions)
}

// Positions reads back the last mirrored position set.
func (m *StateMirror) Positions(ctx context.Context) ([]ledger.Position, bool) {
	var p []ledger.Position
	ok := m.read(ctx, positionsKey, &m.positions, &p)
	return p, ok
}

// MirrorCooldowns publishes the cooldown registry snapshot.
func (m *StateMirror) MirrorCooldowns(ctx context.Context, cooldowns map[string]time.Time) {
	m.mirror(ctx, cooldownsKey, cooldowns, &m.cooldowns)
}

// Cooldowns reads back the last mirrored cooldown snapshot.
func (m *StateMirror) Cooldowns(ctx context.Context) (map[string]time.Time, bool) {
	var c map[string]time.Time
	ok := m.read(ctx, cooldownsKey, &m.cooldowns, &c)
	return c, ok
}

// mirror serializes v, stores it in memory, and best-effort writes it to
// Redis. Mirror failures are logged, never propagated.
func (m *StateMirror) mirror(ctx context.Context, key string, v interface{}, cache *[]byte) {
	data, err := json.Marshal(v)
	if err != nil {
		m.log.Error().Err(err).Str("key", key).Msg("failed to marshal mirror state")
		return
	}

	m.mu.Lock()
	*cache = data
	m.mu.Unlock()

	if m.client == nil {
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := m.client.Set(opCtx, key, data, mirrorTTL).Err(); err != nil {
		m.log.Warn().Err(err).Str("key", key).Msg("redis mirror write failed")
	}
}

// read prefers Redis and falls back to the in-memory copy.
func (m *StateMirror) read(ctx context.Context, key string, cache *[]byte, out interface{}) bool {
	if m.client != nil {
		opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
		defer cancel()
		data, err := m.client.Get(opCtx, key).Bytes()
		if err == nil {
			if jsonErr := json.Unmarshal(data, out); jsonErr == nil {
				return true
			}
		} else if err != redis.Nil {
			m.log.Warn().Err(err).Str("key", key).Msg("redis mirror read failed")
		}
	}

	m.mu.RLock()
	data := *cache
	m.mu.RUnlock()
	if len(data) == 0 {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		m.log.Error().Err(err).Str("key", key).Msg("corrupt in-memory mirror")
		return false
	}
	return true
}
