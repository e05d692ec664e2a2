// Package config loads process configuration for the ignition demo
// service: ambient settings (server, logging, coordinator options) plus connection
// targets for every readiness signal the demo wires up.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Ignition  IgnitionConfig  `mapstructure:"ignition"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Elastic   ElasticConfig   `mapstructure:"elastic"`
	Etcd      EtcdConfig      `mapstructure:"etcd"`
	S3        S3Config        `mapstructure:"s3"`
	ExternalAPI ExternalAPIConfig `mapstructure:"external_api"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

type ServerConfig struct {
	Port            int `mapstructure:"port"`
	ReadTimeout     int `mapstructure:"read_timeout"`
	WriteTimeout    int `mapstructure:"write_timeout"`
	ShutdownTimeout int `mapstructure:"shutdown_timeout"`
}

// IgnitionConfig configures the coordinator's own Options, independent of
// any individual signal's backend.
type IgnitionConfig struct {
	ExecutionMode             string `mapstructure:"execution_mode"`
	Policy                    string `mapstructure:"policy"`
	StagePolicy               string `mapstructure:"stage_policy"`
	EarlyPromotionThreshold   float64 `mapstructure:"early_promotion_threshold"`
	GlobalTimeoutMs           int    `mapstructure:"global_timeout_ms"`
	CancelOnGlobalTimeout     bool   `mapstructure:"cancel_on_global_timeout"`
	CancelIndividualOnTimeout bool   `mapstructure:"cancel_individual_on_timeout"`
	CancelDependentsOnFailure bool   `mapstructure:"cancel_dependents_on_failure"`
	MaxDegreeOfParallelism    int    `mapstructure:"max_degree_of_parallelism"`
}

func (c IgnitionConfig) GlobalTimeout() time.Duration {
	return time.Duration(c.GlobalTimeoutMs) * time.Millisecond
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PingTimeoutMs int `mapstructure:"ping_timeout_ms"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type MySQLConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Name          string `mapstructure:"name"`
	PingTimeoutMs int    `mapstructure:"ping_timeout_ms"`
}

func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", c.User, c.Password, c.Host, c.Port, c.Name)
}

type RedisConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	PingTimeoutMs int    `mapstructure:"ping_timeout_ms"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	ReadyTopic     string   `mapstructure:"ready_topic"`
	RecordingTopic string   `mapstructure:"recording_topic"`
	DialTimeoutMs  int      `mapstructure:"dial_timeout_ms"`
}

type ElasticConfig struct {
	Addresses     []string `mapstructure:"addresses"`
	Index         string   `mapstructure:"index"`
	PingTimeoutMs int      `mapstructure:"ping_timeout_ms"`
}

type EtcdConfig struct {
	Endpoints     []string `mapstructure:"endpoints"`
	DialTimeoutMs int      `mapstructure:"dial_timeout_ms"`
}

type S3Config struct {
	Bucket        string `mapstructure:"bucket"`
	Region        string `mapstructure:"region"`
	PingTimeoutMs int    `mapstructure:"ping_timeout_ms"`
}

type ExternalAPIConfig struct {
	URL               string `mapstructure:"url"`
	TimeoutMs         int    `mapstructure:"timeout_ms"`
	CircuitMaxFailures uint32 `mapstructure:"circuit_max_failures"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	AddCaller  bool   `mapstructure:"add_caller"`
	Stacktrace bool   `mapstructure:"stacktrace"`
}

// Load reads configuration from <serviceName>.yaml in ./configs or
// /etc/ignition on top of built-in defaults; a missing file is not an
// error. IGNITION_-prefixed environment variables override both.
func Load(serviceName string) (*Config, error) {
	viper.SetConfigName(serviceName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/ignition")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetEnvPrefix("IGNITION")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideFromEnv(&cfg)

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 10)
	viper.SetDefault("server.write_timeout", 10)
	viper.SetDefault("server.shutdown_timeout", 15)

	viper.SetDefault("ignition.execution_mode", "DependencyAware")
	viper.SetDefault("ignition.policy", "BestEffort")
	viper.SetDefault("ignition.stage_policy", "AllMustSucceed")
	viper.SetDefault("ignition.early_promotion_threshold", 0.66)
	viper.SetDefault("ignition.global_timeout_ms", 30000)
	viper.SetDefault("ignition.cancel_on_global_timeout", true)
	viper.SetDefault("ignition.cancel_individual_on_timeout", true)
	viper.SetDefault("ignition.cancel_dependents_on_failure", false)
	viper.SetDefault("ignition.max_degree_of_parallelism", 8)

	viper.SetDefault("postgres.host", "localhost")
	viper.SetDefault("postgres.port", 5432)
	viper.SetDefault("postgres.user", "ignition")
	viper.SetDefault("postgres.password", "ignition")
	viper.SetDefault("postgres.name", "ignition")
	viper.SetDefault("postgres.ssl_mode", "disable")
	viper.SetDefault("postgres.ping_timeout_ms", 2000)

	viper.SetDefault("mysql.host", "localhost")
	viper.SetDefault("mysql.port", 3306)
	viper.SetDefault("mysql.user", "ignition")
	viper.SetDefault("mysql.password", "ignition")
	viper.SetDefault("mysql.name", "ignition")
	viper.SetDefault("mysql.ping_timeout_ms", 2000)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ping_timeout_ms", 1000)

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.ready_topic", "ignition.topology-check")
	viper.SetDefault("kafka.recording_topic", "ignition.recordings")
	viper.SetDefault("kafka.dial_timeout_ms", 3000)

	viper.SetDefault("elastic.addresses", []string{"http://localhost:9200"})
	viper.SetDefault("elastic.index", "ignition-readiness")
	viper.SetDefault("elastic.ping_timeout_ms", 2000)

	viper.SetDefault("etcd.endpoints", []string{"localhost:2379"})
	viper.SetDefault("etcd.dial_timeout_ms", 2000)

	viper.SetDefault("s3.bucket", "ignition-artifacts")
	viper.SetDefault("s3.region", "us-east-1")
	viper.SetDefault("s3.ping_timeout_ms", 3000)

	viper.SetDefault("external_api.url", "https://example.invalid/health")
	viper.SetDefault("external_api.timeout_ms", 2000)
	viper.SetDefault("external_api.circuit_max_failures", 3)

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "json")
	viper.SetDefault("logger.output", "stdout")
	viper.SetDefault("logger.add_caller", true)
	viper.SetDefault("logger.stacktrace", false)
}

func overrideFromEnv(cfg *Config) {
	if host := viper.GetString("POSTGRES_HOST"); host != "" {
		cfg.Postgres.Host = host
	}
	if brokers := viper.GetString("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if redisHost := viper.GetString("REDIS_HOST"); redisHost != "" {
		cfg.Redis.Host = redisHost
	}
	if servicePort := viper.GetInt("SERVER_PORT"); servicePort != 0 {
		cfg.Server.Port = servicePort
	}
}
