package graphstate

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"mapdetect/internal/graph/callgraph"
	"mapdetect/pkg/models"
)

// RedisConfig configures Redis access for call-graph persistence.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore keeps one hash per attribution key. Each field is an encoded
// (from, to, endpoint) edge and its value the edge weight. Saving a key
// replaces its stored graph, so repeated runs over the same capture leave the
// same weights behind.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a Redis-backed graph store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "mapdetect:graph"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis graph store: %w", err)
	}

	return &RedisStore{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix)}, nil
}

// WriteGraph saves g under key with a background context.
func (s *RedisStore) WriteGraph(key string, g *callgraph.CallGraph) error {
	return s.SaveGraph(context.Background(), key, g)
}

// SaveGraph replaces the stored graph for key with g in one transaction. An
// empty graph removes the key from the store.
func (s *RedisStore) SaveGraph(ctx context.Context, key string, g *callgraph.CallGraph) error {
	var edges []models.EdgeRow
	if g != nil {
		edges = g.Edges()
	}
	graphKey := s.graphKey(key)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, graphKey)
	if len(edges) == 0 {
		pipe.Del(ctx, s.metaKey(key))
		pipe.SRem(ctx, s.indexKey(), key)
	} else {
		fields := make([]any, 0, 2*len(edges))
		for _, e := range edges {
			fields = append(fields, EncodeField(e.From, e.To, e.Key), e.Weight)
		}
		pipe.HSet(ctx, graphKey, fields...)
		pipe.SAdd(ctx, s.indexKey(), key)
		pipe.HSet(ctx, s.metaKey(key),
			"updated_at", strconv.FormatInt(time.Now().Unix(), 10),
			"edges", strconv.Itoa(len(edges)),
		)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replace graph %s: %w", key, err)
	}
	return nil
}

// LoadGraph rebuilds the stored graph for key. Unknown keys yield an empty
// graph.
func (s *RedisStore) LoadGraph(ctx context.Context, key string) (*callgraph.CallGraph, error) {
	hash, err := s.client.HGetAll(ctx, s.graphKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("read graph %s: %w", key, err)
	}
	return DecodeGraph(hash), nil
}

// Keys lists stored attribution keys in sorted order.
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("read graph index: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes Redis resources.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) graphKey(key string) string {
	return s.prefix + ":edges:" + key
}

func (s *RedisStore) metaKey(key string) string {
	return s.prefix + ":meta:" + key
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":keys"
}

// EncodeField joins an edge into a hash field name. Service names never
// contain '|', so the endpoint may.
func EncodeField(from, to, endpoint string) string {
	return from + "|" + to + "|" + endpoint
}

// DecodeField splits a hash field produced by EncodeField.
func DecodeField(field string) (from, to, endpoint string, ok bool) {
	parts := strings.SplitN(field, "|", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// DecodeGraph converts a stored hash into a graph, skipping fields or weights
// it cannot parse.
func DecodeGraph(hash map[string]string) *callgraph.CallGraph {
	g := callgraph.New()
	for field, value := range hash {
		from, to, endpoint, ok := DecodeField(field)
		if !ok {
			continue
		}
		w, err := strconv.Atoi(value)
		if err != nil {
			continue
		}
		g.AddEdge(from, to, endpoint, w)
	}
	return g
}
