package main

import (
	"context"
	"fmt"

	"github.com/ecodeclub/mq-api"
	"github.com/ecodeclub/mq-api/kafka"
	"github.com/ecodeclub/mq-api/memory"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pribylovaa/comment-tree/internal/config"
	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/notify"
	"github.com/pribylovaa/comment-tree/internal/roots"
	"github.com/pribylovaa/comment-tree/internal/storage"
	"github.com/pribylovaa/comment-tree/internal/storage/filesystem"
	memstore "github.com/pribylovaa/comment-tree/internal/storage/memory"
	"github.com/pribylovaa/comment-tree/internal/storage/minio"
	"github.com/pribylovaa/comment-tree/internal/storage/postgres"
	csredis "github.com/pribylovaa/comment-tree/internal/storage/redis"
)

// commentStore — хранилище комментариев вместе с резолверами сущностей и пользователей.
type commentStore struct {
	storage  storage.Storage
	roots    *roots.Registry
	identity roots.Identity
	// ping — проверка базы для /healthz; nil у хранилища в памяти.
	ping pinger
}

func openCommentStore(ctx context.Context, cfg config.Config) (*commentStore, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		dir := memstore.NewDirectory()
		for _, id := range cfg.Storage.Users {
			dir.AddUser(id)
		}
		for _, id := range cfg.Storage.Pages {
			dir.AddEntity(models.RootPage, id, 0)
		}
		for _, id := range cfg.Storage.Articles {
			dir.AddEntity(models.RootArticle, id, 0)
		}

		return &commentStore{storage: memstore.New(), roots: dir.Registry(), identity: dir}, nil
	default:
		pg, err := postgres.New(ctx, cfg.DB.URL)
		if err != nil {
			return nil, err
		}

		return &commentStore{storage: pg, roots: pg.Registry(), identity: pg, ping: pg.Ping}, nil
	}
}

// healthDeps — внешние зависимости, которые проверяет /healthz.
func healthDeps(store *commentStore, rdb *goredis.Client) map[string]pinger {
	deps := make(map[string]pinger, 2)
	if store.ping != nil {
		deps["postgres"] = store.ping
	}
	if rdb != nil {
		deps["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	return deps
}

// openJobs — Redis при заданном redis.url, иначе память процесса.
func openJobs(rdb *goredis.Client, cfg config.Config) storage.Jobs {
	if rdb == nil {
		return memstore.NewJobs(cfg.Export.TTL)
	}

	return csredis.NewJobs(rdb, cfg.Redis.JobPrefix, cfg.Export.TTL)
}

func openArtifacts(ctx context.Context, cfg config.Config) (storage.Artifacts, error) {
	if cfg.Export.Artifacts == config.ArtifactsMinio {
		s3, err := minio.New(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}

		return s3, nil
	}

	fs, err := filesystem.New(cfg.Export.Dir)
	if err != nil {
		return nil, err
	}

	return fs, nil
}

// openQueue создаёт брокер и топик задач экспорта.
func openQueue(ctx context.Context, cfg config.Config) (mq.MQ, error) {
	var (
		q   mq.MQ
		err error
	)

	switch cfg.Export.Broker {
	case config.BrokerKafka:
		q, err = kafka.NewMQ(cfg.Export.KafkaNetwork, cfg.Export.KafkaAddresses)
		if err != nil {
			return nil, fmt.Errorf("kafka: %w", err)
		}
	default:
		q = memory.NewMQ()
	}

	if err := q.CreateTopic(ctx, cfg.Export.Topic, cfg.Export.Partitions); err != nil {
		return nil, fmt.Errorf("create topic %q: %w", cfg.Export.Topic, err)
	}

	return q, nil
}

// openNotifier — публикация в Redis pub/sub; без Redis или при notify.enabled=false — Nop.
func openNotifier(rdb *goredis.Client, cfg config.Config) notify.Sink {
	if rdb == nil || !cfg.Notify.Enabled {
		return notify.Nop{}
	}

	return notify.NewRedisSink(rdb, cfg.Notify.ChannelPrefix)
}
