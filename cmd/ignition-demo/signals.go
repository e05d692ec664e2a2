package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	clientv3 "go.etcd.io/etcd/client/v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	awssdk "github.com/aws/aws-sdk-go/aws"
	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/linkflow-go/ignition/pkg/config"
	"github.com/linkflow-go/ignition/pkg/ignition"
	"github.com/linkflow-go/ignition/pkg/logger"
	"github.com/linkflow-go/ignition/pkg/resilience"
)

// buildGraph wires one readiness signal per backend this service depends
// on, into the dependency shape a real rollout would want to enforce:
// the databases must come up before cache warmup makes sense, and the
// search index isn't worth checking until both have a chance to settle.
// Everything else (Kafka, etcd, S3, system resources, the external
// partner API) stands on its own.
func buildGraph(cfg *config.Config, log logger.Logger) (*ignition.Graph, error) {
	postgresSig := postgresSignal(cfg.Postgres)
	mysqlSig := mysqlSignal(cfg.MySQL)
	redisSig := redisSignal(cfg.Redis)
	elasticSig := elasticsearchSignal(cfg.Elastic)
	kafkaSig := kafkaTopologySignal(cfg.Kafka)
	etcdSig := etcdSignal(cfg.Etcd)
	s3Sig := s3Signal(cfg.S3)
	resourcesSig := systemResourcesSignal()
	externalSig := externalAPISignal(cfg.ExternalAPI, log)

	b := ignition.NewGraphBuilder().
		AddSignal(postgresSig).
		AddSignal(mysqlSig).
		AddSignal(redisSig).
		AddSignal(elasticSig).
		AddSignal(kafkaSig).
		AddSignal(etcdSig).
		AddSignal(s3Sig).
		AddSignal(resourcesSig).
		AddSignal(externalSig).
		DependsOn(redisSig, postgresSig, mysqlSig).
		DependsOn(elasticSig, redisSig)

	return b.Build()
}

func pingTimeout(ms int) time.Duration {
	if ms <= 0 {
		return 2 * time.Second
	}
	return time.Duration(ms) * time.Millisecond
}

func postgresSignal(cfg config.PostgresConfig) *ignition.Signal {
	return ignition.NewSignal("postgres", func(ctx context.Context) error {
		db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("postgres handle: %w", err)
		}
		defer sqlDB.Close()
		return sqlDB.PingContext(ctx)
	}, ignition.WithTimeout(pingTimeout(cfg.PingTimeoutMs)))
}

func mysqlSignal(cfg config.MySQLConfig) *ignition.Signal {
	return ignition.NewSignal("mysql", func(ctx context.Context) error {
		db, err := sql.Open("mysql", cfg.DSN())
		if err != nil {
			return fmt.Errorf("open mysql: %w", err)
		}
		defer db.Close()
		return db.PingContext(ctx)
	}, ignition.WithTimeout(pingTimeout(cfg.PingTimeoutMs)))
}

func redisSignal(cfg config.RedisConfig) *ignition.Signal {
	return ignition.NewSignal("redis-cache-warmup", func(ctx context.Context) error {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr(),
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		defer client.Close()
		return client.Ping(ctx).Err()
	}, ignition.WithTimeout(pingTimeout(cfg.PingTimeoutMs)))
}

func elasticsearchSignal(cfg config.ElasticConfig) *ignition.Signal {
	return ignition.NewSignal("search-index-ready", func(ctx context.Context) error {
		client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: cfg.Addresses})
		if err != nil {
			return fmt.Errorf("create elasticsearch client: %w", err)
		}
		res, err := client.Indices.Exists([]string{cfg.Index}, client.Indices.Exists.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("check index %q: %w", cfg.Index, err)
		}
		defer res.Body.Close()
		if res.IsError() && res.StatusCode != http.StatusNotFound {
			return fmt.Errorf("elasticsearch returned %s", res.Status())
		}
		return nil
	}, ignition.WithTimeout(pingTimeout(cfg.PingTimeoutMs)))
}

func kafkaTopologySignal(cfg config.KafkaConfig) *ignition.Signal {
	return ignition.NewSignal("kafka-topology", func(ctx context.Context) error {
		if len(cfg.Brokers) == 0 {
			return fmt.Errorf("no kafka brokers configured")
		}
		dialer := &kafka.Dialer{Timeout: pingTimeout(cfg.DialTimeoutMs)}
		conn, err := dialer.DialContext(ctx, "tcp", cfg.Brokers[0])
		if err != nil {
			return fmt.Errorf("dial kafka broker %s: %w", cfg.Brokers[0], err)
		}
		defer conn.Close()
		if _, err := conn.Brokers(); err != nil {
			return fmt.Errorf("list kafka brokers: %w", err)
		}
		return nil
	}, ignition.WithTimeout(pingTimeout(cfg.DialTimeoutMs)))
}

func etcdSignal(cfg config.EtcdConfig) *ignition.Signal {
	return ignition.NewSignal("etcd", func(ctx context.Context) error {
		cli, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.Endpoints,
			DialTimeout: pingTimeout(cfg.DialTimeoutMs),
		})
		if err != nil {
			return fmt.Errorf("create etcd client: %w", err)
		}
		defer cli.Close()
		if len(cfg.Endpoints) == 0 {
			return fmt.Errorf("no etcd endpoints configured")
		}
		_, err = cli.Status(ctx, cfg.Endpoints[0])
		return err
	}, ignition.WithTimeout(pingTimeout(cfg.DialTimeoutMs)))
}

func s3Signal(cfg config.S3Config) *ignition.Signal {
	return ignition.NewSignal("s3-artifacts-bucket", func(ctx context.Context) error {
		sess, err := awssession.NewSession(&awssdk.Config{Region: awssdk.String(cfg.Region)})
		if err != nil {
			return fmt.Errorf("create aws session: %w", err)
		}
		client := s3.New(sess)
		_, err = client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: awssdk.String(cfg.Bucket)})
		if err != nil {
			return fmt.Errorf("head bucket %q: %w", cfg.Bucket, err)
		}
		return nil
	}, ignition.WithTimeout(pingTimeout(cfg.PingTimeoutMs)))
}

// systemResourcesSignal fails readiness when the host is already under
// enough memory or CPU pressure that accepting traffic would make things
// worse — a self-check rather than a dependency check.
func systemResourcesSignal() *ignition.Signal {
	const (
		maxMemPercent = 90.0
		maxCPUPercent = 95.0
	)
	return ignition.NewSignal("system-resources", func(ctx context.Context) error {
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return fmt.Errorf("read memory stats: %w", err)
		}
		if vm.UsedPercent > maxMemPercent {
			return fmt.Errorf("memory usage %.1f%% exceeds %.1f%% threshold", vm.UsedPercent, maxMemPercent)
		}
		cpuPercents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
		if err != nil {
			return fmt.Errorf("read cpu stats: %w", err)
		}
		if len(cpuPercents) > 0 && cpuPercents[0] > maxCPUPercent {
			return fmt.Errorf("cpu usage %.1f%% exceeds %.1f%% threshold", cpuPercents[0], maxCPUPercent)
		}
		return nil
	}, ignition.WithTimeout(3*time.Second))
}

// externalAPISignal wraps the HTTP call to a downstream partner with the
// same circuit breaker and retry building blocks the rest of the
// codebase uses for outbound calls, so a flapping partner can't keep
// dragging every ignition attempt through its own timeout.
func externalAPISignal(cfg config.ExternalAPIConfig, log logger.Logger) *ignition.Signal {
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "external-api-readiness",
		MaxRequests:  1,
		Interval:     30 * time.Second,
		Timeout:      15 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  cfg.CircuitMaxFailures,
	})
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.MaxAttempts = 2

	return ignition.NewSignal("external-api", func(ctx context.Context) error {
		return resilience.Retry(ctx, retryCfg, func() error {
			_, err := breaker.ExecuteWithContext(ctx, func(ctx context.Context) (interface{}, error) {
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
				if err != nil {
					return nil, err
				}
				resp, err := http.DefaultClient.Do(req)
				if err != nil {
					return nil, err
				}
				defer resp.Body.Close()
				if resp.StatusCode >= 500 {
					return nil, fmt.Errorf("external api returned %d", resp.StatusCode)
				}
				return nil, nil
			})
			if err != nil {
				log.Warn("external api readiness check failed", "error", err)
			}
			return err
		})
	}, ignition.WithTimeout(pingTimeout(cfg.TimeoutMs)))
}
