package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/marsukat/marsukat-dashboard/internal/aggregate"
	"github.com/marsukat/marsukat-dashboard/internal/upstream"
)

const (
	versionsKey   = "dashboard:versions"
	recordsPrefix = "dashboard:records"
	bumpChannel   = "dashboard.bump"

	// globalField is the generation shared by every resource.
	globalField = "*"
)

// Cache keeps upstream record sets in Redis. Each key carries the global
// generation and the generation of its resource, so a single resource can be
// dropped without refetching the others.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	loads  singleflight.Group
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Key returns the record-set key for a resource query at the current
// generations.
func (c *Cache) Key(ctx context.Context, resource upstream.Resource, query url.Values) (string, error) {
	if c == nil || c.client == nil {
		return fmt.Sprintf("%s:%s:%s", recordsPrefix, resource, query.Encode()), nil
	}
	vals, err := c.client.HMGet(ctx, versionsKey, globalField, string(resource)).Result()
	if err != nil {
		return "", fmt.Errorf("dashboard cache: versions: %w", err)
	}
	return fmt.Sprintf("%s:%s:g%d.r%d:%s", recordsPrefix, resource,
		parseGeneration(vals[0]), parseGeneration(vals[1]), query.Encode()), nil
}

func parseGeneration(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Records returns the cached record set for a resource query, calling load
// and storing its result on a miss. Concurrent misses on one key share a
// single load. Invalid numbers are stored as 0.
func (c *Cache) Records(ctx context.Context, resource upstream.Resource, query url.Values, load func(context.Context) ([]aggregate.Record, error)) ([]aggregate.Record, error) {
	if load == nil {
		return nil, errors.New("dashboard cache: loader required")
	}
	if c == nil || c.client == nil {
		return load(ctx)
	}
	key, err := c.Key(ctx, resource, query)
	if err != nil {
		return nil, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return decodeRecordSet(payload)
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("dashboard cache: get %s: %w", resource, err)
	}

	v, err, _ := c.loads.Do(key, func() (interface{}, error) {
		records, err := load(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(records)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return nil, fmt.Errorf("dashboard cache: set %s: %w", resource, err)
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	// Every caller decodes its own copy of the shared payload.
	return decodeRecordSet(v.([]byte))
}

func decodeRecordSet(raw []byte) ([]aggregate.Record, error) {
	var records []aggregate.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("dashboard cache: decode: %w", err)
	}
	return records, nil
}

// Bump drops every cached record set and returns the new global generation.
func (c *Cache) Bump(ctx context.Context) (int64, error) {
	return c.bump(ctx, globalField)
}

// BumpResource drops the cached record sets of one resource and returns its
// new generation.
func (c *Cache) BumpResource(ctx context.Context, resource upstream.Resource) (int64, error) {
	return c.bump(ctx, string(resource))
}

// bump increments a generation and announces it as "<field>=<generation>" on
// the bump channel.
func (c *Cache) bump(ctx context.Context, field string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.HIncrBy(ctx, versionsKey, field, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("dashboard cache: bump %s: %w", field, err)
	}
	return ver, c.client.Publish(ctx, bumpChannel, field+"="+strconv.FormatInt(ver, 10)).Err()
}
