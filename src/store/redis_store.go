package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/MalekiRe/nexus-social/src/common"
	"github.com/MalekiRe/nexus-social/src/outbox"
	"github.com/MalekiRe/nexus-social/src/social"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// maxTxRetries bounds how many times an optimistic transaction is retried when
// another client modified the watched key.
const maxTxRetries = 10

// RedisStore keeps records in Redis. Each record is a single key updated with
// WATCH/MULTI, so several processes can share one Redis safely; the local
// record locks only avoid needless retries inside this process.
type RedisStore struct {
	client *redis.Client
	prefix string
	locks  recordLocks
	ctx    context.Context
	logger *logrus.Entry
}

// NewRedisStore connects to Redis and checks that it answers.
func NewRedisStore(opts *redis.Options, prefix string, logger *logrus.Entry) (*RedisStore, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	s := &RedisStore{
		client: redis.NewClient(opts),
		prefix: prefix,
		ctx:    context.Background(),
		logger: logger.WithField("ns", "redis"),
	}

	if err := s.client.Ping(s.ctx).Err(); err != nil {
		s.client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}

	return s, nil
}

func (s *RedisStore) userKey(username string) string {
	return fmt.Sprintf("%s:user:%s", s.prefix, username)
}

func (s *RedisStore) usersKey() string {
	return s.prefix + ":users"
}

func (s *RedisStore) outboxKey() string {
	return s.prefix + ":outbox"
}

// Register implements the Store interface.
func (s *RedisStore) Register(username string) error {
	data, err := social.NewUserRecord().Marshal()
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(s.ctx, s.userKey(username), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return alreadyExists(username)
	}

	return s.client.SAdd(s.ctx, s.usersKey(), username).Err()
}

// Get implements the Store interface.
func (s *RedisStore) Get(username string) (*social.UserRecord, error) {
	return s.getUser(s.client, username)
}

func (s *RedisStore) getUser(c redis.Cmdable, username string) (*social.UserRecord, error) {
	data, err := c.Get(s.ctx, s.userKey(username)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, notFound(username)
		}
		return nil, err
	}

	u := new(social.UserRecord)
	if err := u.Unmarshal(data); err != nil {
		return nil, err
	}

	return u, nil
}

// Update implements the Store interface. fn may run more than once if the
// record is modified concurrently by another process.
func (s *RedisStore) Update(username string, fn func(*social.UserRecord) error) error {
	unlock := s.locks.lock(username)
	defer unlock()

	key := s.userKey(username)

	txf := func(tx *redis.Tx) error {
		u, err := s.getUser(tx, username)
		if err != nil {
			return err
		}

		if err := fn(u); err != nil {
			return err
		}

		data, err := u.Marshal()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(s.ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(s.ctx, key, data, 0)
			return nil
		})

		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(s.ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.WithFields(logrus.Fields{
				"user":    username,
				"attempt": i + 1,
			}).Debug("Record changed during transaction, retrying")
			continue
		}
		return err
	}

	return fmt.Errorf("updating %s: %w", username, redis.TxFailedErr)
}

// Usernames implements the Store interface.
func (s *RedisStore) Usernames() ([]string, error) {
	res, err := s.client.SMembers(s.ctx, s.usersKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(res)
	return res, nil
}

// Close implements the Store interface.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// SaveDelivery implements the outbox.Journal interface.
func (s *RedisStore) SaveDelivery(d *outbox.Delivery) error {
	data, err := d.Marshal()
	if err != nil {
		return err
	}
	return s.client.HSet(s.ctx, s.outboxKey(), d.ID, data).Err()
}

// GetDelivery implements the outbox.Journal interface.
func (s *RedisStore) GetDelivery(id string) (*outbox.Delivery, error) {
	data, err := s.client.HGet(s.ctx, s.outboxKey(), id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, common.NewErr("Delivery", common.NotFound, id)
		}
		return nil, err
	}

	d := new(outbox.Delivery)
	if err := d.Unmarshal(data); err != nil {
		return nil, err
	}

	return d, nil
}

// DeleteDelivery implements the outbox.Journal interface.
func (s *RedisStore) DeleteDelivery(id string) error {
	return s.client.HDel(s.ctx, s.outboxKey(), id).Err()
}

// Deliveries implements the outbox.Journal interface.
func (s *RedisStore) Deliveries() ([]*outbox.Delivery, error) {
	all, err := s.client.HGetAll(s.ctx, s.outboxKey()).Result()
	if err != nil {
		return nil, err
	}

	res := make([]*outbox.Delivery, 0, len(all))
	for _, data := range all {
		d := new(outbox.Delivery)
		if err := d.Unmarshal([]byte(data)); err != nil {
			return nil, err
		}
		res = append(res, d)
	}

	outbox.SortByCreated(res)

	return res, nil
}
