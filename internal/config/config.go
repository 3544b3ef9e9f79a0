package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

type ChatConfig struct {
	App      App
	Log      Log
	Store    Store
	Database Database
	Mongo    Mongo
	Redis    Redis
	Queue    Queue
	Delivery Delivery
	JWT      JWT
}

type MailerConfig struct {
	App      MailerApp
	Log      Log
	RabbitMQ RabbitMQ
	SMTP     SMTP
}

type App struct {
	Port string `env:"PORT" env-default:"3003"`
}

type MailerApp struct {
	Port string `env:"MAILER_PORT" env-default:"3002"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"text"`
}

type Store struct {
	Driver string `env:"STORE_DRIVER" env-default:"postgres"`
}

type JWT struct {
	Secret string `env:"JWT_SECRET" env-required:"true"`
}

type Redis struct {
	URL            string        `env:"REDIS_URL"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" env-default:"5s"`
	CacheTTL       time.Duration `env:"REDIS_CACHE_TTL" env-default:"1h"`
}

type Queue struct {
	Key               string        `env:"QUEUE_KEY" env-default:"message_queue"`
	MemoryCapacity    int           `env:"QUEUE_MEMORY_CAPACITY" env-default:"0"`
	ReconnectInterval time.Duration `env:"QUEUE_RECONNECT_INTERVAL" env-default:"30s"`
	ReconnectAttempts uint64        `env:"QUEUE_RECONNECT_ATTEMPTS" env-default:"0"`
}

type Delivery struct {
	PollInterval time.Duration `env:"DELIVERY_POLL_INTERVAL" env-default:"100ms"`
	BatchSize    int           `env:"DELIVERY_BATCH_SIZE" env-default:"32"`
	Workers      int           `env:"DELIVERY_WORKERS" env-default:"4"`
}

type Database struct {
	Host     string `env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `env:"POSTGRES_PORT" env-default:"5432"`
	User     string `env:"POSTGRES_USER" env-default:"postgres"`
	DBName   string `env:"POSTGRES_DB" env-default:"hellochat"`
	Password string `env:"POSTGRES_PASSWORD"`
	SSLMode  string `env:"POSTGRES_SSLMODE" env-default:"disable"`

	// MigrateDownOnExit rolls the schema back on shutdown. Development only.
	MigrateDownOnExit bool `env:"POSTGRES_MIGRATE_DOWN_ON_EXIT" env-default:"false"`
}

func (d Database) DSN() string {
	return fmt.Sprintf(
		`host=%s port=%s user=%s password=%s dbname=%s sslmode=%s`,
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type Mongo struct {
	URI      string `env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	Database string `env:"MONGO_DB" env-default:"hellochat"`
}

type RabbitMQ struct {
	Host      string `env:"RABBITMQ_HOST" env-default:"localhost"`
	Port      int    `env:"RABBITMQ_PORT" env-default:"5672"`
	Username  string `env:"RABBITMQ_USERNAME" env-default:"guest"`
	Password  string `env:"RABBITMQ_PASSWORD" env-default:"guest"`
	Queue     string `env:"OTP_QUEUE" env-default:"hello-send-otp"`
	Prefetch  int    `env:"OTP_PREFETCH" env-default:"10"`
	MaxRetry  int    `env:"OTP_MAX_RETRIES" env-default:"3"`
	DialRetry uint64 `env:"RABBITMQ_DIAL_ATTEMPTS" env-default:"5"`
}

type SMTP struct {
	Host     string `env:"SMTP_HOST" env-default:"smtp.gmail.com"`
	Port     int    `env:"SMTP_PORT" env-default:"465"`
	Username string `env:"GMAIL_USER"`
	Password string `env:"GMAIL_PASSWORD"`
	FromName string `env:"SMTP_FROM_NAME" env-default:"Hello Chat"`
}

func LoadChat() (*ChatConfig, error) {
	cfg := &ChatConfig{}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment variables: %w", err)
	}

	switch cfg.Store.Driver {
	case StoreMemory, StorePostgres, StoreMongo:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Store.Driver)
	}
	if cfg.Delivery.Workers < 1 {
		cfg.Delivery.Workers = 1
	}
	if cfg.Delivery.BatchSize < 1 {
		cfg.Delivery.BatchSize = 1
	}
	return cfg, nil
}

func LoadMailer() (*MailerConfig, error) {
	cfg := &MailerConfig{}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment variables: %w", err)
	}
	return cfg, nil
}
