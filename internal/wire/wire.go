// Package wire provides dependency injection for leasehold.
// It creates singleton services with lazy initialization.
package wire

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/leasehold/internal/adapters/notify"
	"github.com/example/leasehold/internal/adapters/redislock"
	"github.com/example/leasehold/internal/adapters/sqlite"
	"github.com/example/leasehold/internal/adapters/stream"
	"github.com/example/leasehold/internal/app"
	"github.com/example/leasehold/internal/config"
	"github.com/example/leasehold/internal/db"
	"github.com/example/leasehold/internal/ports/primary"
	"github.com/example/leasehold/internal/ports/secondary"
)

var (
	mu     sync.Mutex
	cfg    *config.Config
	logger = zap.NewNop()

	database *sql.DB
	dbErr    error
	dbOnce   sync.Once

	escalationService primary.EscalationService
	publisher         secondary.EventPublisher
	redisClients      []*redis.Client
	svcErr            error
	svcOnce           sync.Once
)

// Configure sets the configuration and logger used by every singleton.
// It must be called before the first accessor.
func Configure(c *config.Config, l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	cfg = c
	if l != nil {
		logger = l
	}
}

func currentConfig() *config.Config {
	mu.Lock()
	defer mu.Unlock()
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg
}

// Config returns the active configuration.
func Config() *config.Config {
	return currentConfig()
}

// Logger returns the process logger.
func Logger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Database returns the singleton database connection with the schema applied.
func Database() (*sql.DB, error) {
	dbOnce.Do(initDatabase)
	return database, dbErr
}

func initDatabase() {
	c := currentConfig()
	conn, err := db.Open(c.Database.Driver, c.Database.DSN)
	if err != nil {
		dbErr = fmt.Errorf("failed to initialize database: %w", err)
		return
	}
	if err := db.InitSchema(conn); err != nil {
		conn.Close()
		dbErr = fmt.Errorf("failed to initialize schema: %w", err)
		return
	}
	database = conn
}

// TicketRepository returns a ticket repository over the singleton database.
func TicketRepository() (secondary.TicketRepository, error) {
	conn, err := Database()
	if err != nil {
		return nil, err
	}
	return sqlite.NewTicketRepository(conn), nil
}

// EscalationService returns the singleton EscalationService instance.
func EscalationService() (primary.EscalationService, error) {
	svcOnce.Do(initServices)
	return escalationService, svcErr
}

// initServices initializes all services and their dependencies.
// This is called once via sync.Once.
func initServices() {
	conn, err := Database()
	if err != nil {
		svcErr = err
		return
	}
	c := currentConfig()
	log := Logger()

	// Create repository adapters (secondary ports) - sqlite adapters with injected DB
	tickets := sqlite.NewTicketRepository(conn)
	policies := sqlite.NewPolicyRepository(conn)
	orgPlans := sqlite.NewOrgPlanRepository(conn)
	ledger := sqlite.NewEscalationEventRepository(conn)
	users := sqlite.NewUserRepository(conn)
	inbox := sqlite.NewNotificationRepository(conn)

	gateway := notify.NewGateway(users, breakerSettings(c.Notify.Breaker), log, notificationChannels(c.Notify, inbox, log)...)

	publisher, err = eventPublisher(c.Kafka, log)
	if err != nil {
		svcErr = err
		return
	}

	var lock secondary.RunLock
	if c.Lock.Enabled {
		lock = redislock.New(newRedisClient(c.Lock.Addr, c.Lock.Password, c.Lock.DB))
	}

	resolver := app.NewPolicyResolver(policies, orgPlans)
	executor := app.NewEffectExecutor(ledger, tickets, gateway, publisher, log)
	engine := app.NewEscalationEngine(tickets, resolver, executor, lock, app.EngineConfig{
		BatchSize:               c.Engine.BatchSize,
		Concurrency:             c.Engine.Concurrency,
		RunTimeout:              c.Engine.RunTimeout,
		ScopeNotificationsToOrg: c.Engine.ScopeNotificationsToOrg,
		LockKey:                 c.Lock.Key,
		LockTTL:                 c.Lock.TTL,
	}, log)

	// Create services (primary ports implementation)
	escalationService = app.NewEscalationService(engine, resolver, ledger)
}

func breakerSettings(c config.BreakerConfig) notify.BreakerSettings {
	return notify.BreakerSettings{
		MaxRequests: c.MaxRequests,
		Interval:    c.Interval,
		Timeout:     c.Timeout,
		MinRequests: c.MinRequests,
		FailRatio:   c.FailRatio,
	}
}

// notificationChannels returns the in-app inbox plus every enabled optional channel.
func notificationChannels(c config.NotifyConfig, inbox secondary.NotificationRepository, log *zap.Logger) []secondary.NotificationChannel {
	channels := []secondary.NotificationChannel{notify.NewInboxChannel(inbox)}

	if c.Email.Enabled {
		sender := notify.NewSMTPSender(notify.EmailConfig{
			Host:               c.Email.Host,
			Port:               c.Email.Port,
			Username:           c.Email.Username,
			Password:           c.Email.Password,
			SenderAddress:      c.Email.SenderAddress,
			SenderName:         c.Email.SenderName,
			InsecureSkipVerify: c.Email.InsecureSkipVerify,
			RetryCount:         c.Email.RetryCount,
			RetryBackoff:       c.Email.RetryBackoff,
		}, log)
		channels = append(channels, notify.NewEmailChannel(sender))
	}

	if c.Redis.Enabled {
		client := newRedisClient(c.Redis.Addr, c.Redis.Password, c.Redis.DB)
		channels = append(channels, notify.NewRedisInboxChannel(client, c.Redis.KeyPrefix, c.Redis.MaxLength))
	}

	return channels
}

func eventPublisher(c config.KafkaConfig, log *zap.Logger) (secondary.EventPublisher, error) {
	if len(c.Brokers) == 0 {
		return stream.NopPublisher{}, nil
	}
	p, err := stream.NewPublisher(stream.Config{
		Brokers:          c.Brokers,
		Topic:            c.Topic,
		BatchSize:        c.BatchSize,
		BatchTimeout:     c.BatchTimeout,
		WriteTimeout:     c.WriteTimeout,
		RequiredAcks:     c.RequiredAcks,
		CompressionCodec: c.Compression,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create event publisher: %w", err)
	}
	return p, nil
}

func newRedisClient(addr, password string, dbIndex int) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       dbIndex,
	})
	redisClients = append(redisClients, client)
	return client
}

// Close releases every connection opened by the singletons.
func Close() error {
	var errs []error
	if publisher != nil {
		errs = append(errs, publisher.Close())
	}
	for _, client := range redisClients {
		errs = append(errs, client.Close())
	}
	if database != nil {
		errs = append(errs, database.Close())
	}
	return errors.Join(errs...)
}
