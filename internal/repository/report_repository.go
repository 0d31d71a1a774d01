package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/osvaldoandrade/typhoonlens/pkg/domain"

	"github.com/go-redis/redis/v8"
)

var ErrReportNotFound = errors.New("not-found")

type ReportRepository interface {
	Get(ctx context.Context, key string) (*domain.Report, error)
	Save(ctx context.Context, rep *domain.Report, ttl time.Duration) error
	Count(ctx context.Context) (int64, error)
}

type reportRedisRepo struct {
	rdb *redis.Client
	now func() time.Time
}

func NewReportRepository(rdb *redis.Client, now func() time.Time) ReportRepository {
	if now == nil {
		now = time.Now
	}
	return &reportRedisRepo{rdb: rdb, now: now}
}

func (r *reportRedisRepo) keyReport(key string) string {
	return fmt.Sprintf("typhoonlens:report:%s", key)
}
func (r *reportRedisRepo) keyTTLIndex() string { return "typhoonlens:reports:ttl" }

func (r *reportRedisRepo) Get(ctx context.Context, key string) (*domain.Report, error) {
	js, err := r.rdb.Get(ctx, r.keyReport(key)).Result()
	if err == redis.Nil || (err == nil && js == "") {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET report: %w", err)
	}
	var rep domain.Report
	if err := json.Unmarshal([]byte(js), &rep); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &rep, nil
}

// Save writes the report and records its expiry in the ttl index so Count
// never has to scan the keyspace.
func (r *reportRedisRepo) Save(ctx context.Context, rep *domain.Report, ttl time.Duration) error {
	if rep == nil || rep.Key == "" {
		return errors.New("report key is required")
	}
	b, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	score := float64(math.MaxInt64)
	if ttl > 0 {
		score = float64(r.now().Add(ttl).UTC().Unix())
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.keyReport(rep.Key), string(b), ttl)
		pipe.ZAdd(ctx, r.keyTTLIndex(), &redis.Z{Score: score, Member: rep.Key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis SET report: %w", err)
	}
	return nil
}

func (r *reportRedisRepo) Count(ctx context.Context) (int64, error) {
	cutoff := "(" + strconv.FormatInt(r.now().UTC().Unix(), 10)
	if err := r.rdb.ZRemRangeByScore(ctx, r.keyTTLIndex(), "-inf", cutoff).Err(); err != nil {
		return 0, fmt.Errorf("redis ZREMRANGEBYSCORE reports: %w", err)
	}
	n, err := r.rdb.ZCard(ctx, r.keyTTLIndex()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ZCARD reports: %w", err)
	}
	return n, nil
}
