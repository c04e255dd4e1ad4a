package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/relsync/internal/model"
	"github.com/mcoot/relsync/internal/storage"
)

// Storage is a Redis-backed implementation of the profile cache
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.ProfileCache = (*Storage)(nil)

// Peer operations

// maxTxRetries bounds optimistic transaction retries when a watched key
// changes underneath a write
const maxTxRetries = 5

// PutProfile upserts a peer record. Overwriting the record marked as self
// keeps the marker and, unless the new record carries one, its self block.
// The marker and the existing record are watched so a concurrent PutSelf
// cannot interleave.
func (s *Storage) PutProfile(ctx context.Context, profile *model.PeerProfile) error {
	key := profileKey(profile.ID)

	txf := func(tx *redis.Tx) error {
		selfID, err := markedSelf(ctx, tx)
		if err != nil {
			return err
		}

		rec := *profile
		rec.IsMe = selfID != nil && *selfID == rec.ID

		var ttl time.Duration
		if rec.IsMe {
			if rec.Self == nil {
				existing, err := getProfile(ctx, tx, rec.ID)
				if err != nil && !errors.Is(err, model.ErrPeerNotFound) {
					return err
				}
				if existing != nil {
					rec.Self = existing.Self
				}
			}
		} else {
			ttl = s.cfg.ProfileTTL
		}

		data, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			return nil
		})
		return err
	}

	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, selfMarkerKey(), key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return redis.TxFailedErr
}

func (s *Storage) GetProfile(ctx context.Context, id model.PeerID) (*model.PeerProfile, error) {
	return getProfile(ctx, s.client, id)
}

// getter is the read side shared by the client and a watched transaction
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getProfile(ctx context.Context, g getter, id model.PeerID) (*model.PeerProfile, error) {
	data, err := g.Get(ctx, profileKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrPeerNotFound
		}
		return nil, err
	}

	var profile model.PeerProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Self marker operations

func (s *Storage) GetSelf(ctx context.Context) (*model.PeerProfile, error) {
	selfID, err := markedSelf(ctx, s.client)
	if err != nil {
		return nil, err
	}
	if selfID == nil {
		return nil, model.ErrSelfNotFound
	}

	profile, err := s.GetProfile(ctx, *selfID)
	if errors.Is(err, model.ErrPeerNotFound) {
		return nil, model.ErrSelfNotFound
	}
	return profile, err
}

func (s *Storage) ClearSelfMarker(ctx context.Context, id model.PeerID) error {
	selfID, err := markedSelf(ctx, s.client)
	if err != nil {
		return err
	}

	profile, err := s.GetProfile(ctx, id)
	if err != nil && !errors.Is(err, model.ErrPeerNotFound) {
		return err
	}

	// Rewrite the record and drop the marker atomically
	pipe := s.client.TxPipeline()
	if profile != nil {
		profile.IsMe = false
		data, err := json.Marshal(profile)
		if err != nil {
			return err
		}
		pipe.Set(ctx, profileKey(id), data, s.cfg.ProfileTTL)
	}
	if selfID != nil && *selfID == id {
		pipe.Del(ctx, selfMarkerKey())
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) PutSelf(ctx context.Context, profile *model.PeerProfile) error {
	prevID, err := markedSelf(ctx, s.client)
	if err != nil {
		return err
	}

	var prev *model.PeerProfile
	if prevID != nil && *prevID != profile.ID {
		prev, err = s.GetProfile(ctx, *prevID)
		if err != nil && !errors.Is(err, model.ErrPeerNotFound) {
			return err
		}
	}

	rec := *profile
	rec.IsMe = true
	data, err := json.Marshal(&rec)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	if prev != nil {
		prev.IsMe = false
		prevData, err := json.Marshal(prev)
		if err != nil {
			return err
		}
		pipe.Set(ctx, profileKey(prev.ID), prevData, s.cfg.ProfileTTL)
	}
	pipe.Set(ctx, profileKey(rec.ID), data, 0) // No TTL for self
	pipe.Set(ctx, selfMarkerKey(), rec.ID.String(), 0)
	_, err = pipe.Exec(ctx)
	return err
}

// markedSelf returns the id stored in the self marker, or nil
func markedSelf(ctx context.Context, g getter) (*model.PeerID, error) {
	raw, err := g.Get(ctx, selfMarkerKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	id, err := model.ParsePeerID(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
