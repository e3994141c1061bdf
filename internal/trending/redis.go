package trending

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisRankingKey = "moviefinder:trending"
	redisTermPrefix = "moviefinder:trending:term:"
)

// RedisStore keeps counts in a sorted set and each term's movie in a hash.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// OpenRedis parses a redis:// URL and verifies the connection.
func OpenRedis(ctx context.Context, rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(client), nil
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// Increment bumps the term's score and records its movie on first use.
func (s *RedisStore) Increment(ctx context.Context, term string, movie Representative) error {
	key, err := normalizeTerm(term)
	if err != nil {
		return err
	}

	now := strconv.FormatInt(s.now().UTC().UnixMilli(), 10)
	hashKey := redisTermPrefix + key
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZIncrBy(ctx, redisRankingKey, 1, key)
		pipe.HSetNX(ctx, hashKey, "movie_id", movie.MovieID)
		pipe.HSetNX(ctx, hashKey, "title", movie.Title)
		pipe.HSetNX(ctx, hashKey, "poster_url", movie.PosterURL)
		pipe.HSetNX(ctx, hashKey, "created_at", now)
		pipe.HSet(ctx, hashKey, "updated_at", now)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to increment counter %q: %w", key, err)
	}
	return nil
}

// Top returns the highest counters. Equal scores come back in reverse
// lexicographic member order.
func (s *RedisStore) Top(ctx context.Context, limit int) ([]Counter, error) {
	ranked, err := s.client.ZRevRangeWithScores(ctx, redisRankingKey, 0, int64(normalizeLimit(limit)-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query top counters: %w", err)
	}

	counters := []Counter{}
	if len(ranked) == 0 {
		return counters, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ranked))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, z := range ranked {
			cmds[i] = pipe.HGetAll(ctx, redisTermPrefix+fmt.Sprint(z.Member))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load counter details: %w", err)
	}

	for i, z := range ranked {
		fields := cmds[i].Val()
		movieID, _ := strconv.Atoi(fields["movie_id"])
		counters = append(counters, Counter{
			SearchTerm: fmt.Sprint(z.Member),
			Count:      int64(z.Score),
			MovieID:    movieID,
			Title:      fields["title"],
			PosterURL:  fields["poster_url"],
			CreatedAt:  parseMillis(fields["created_at"]),
			UpdatedAt:  parseMillis(fields["updated_at"]),
		})
	}
	return counters, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func parseMillis(raw string) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
