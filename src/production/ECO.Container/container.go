package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gitlab.com/ecotrack/eco.iot_server/src/production/ECO.ApiService/health"
	config "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Config"
	logger "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Logger"
	implementation "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Repository/Implementation"
	interfaces "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Repository/Interfaces"
)

// ApiContainer manages dependencies and their lifecycle for the API service
type ApiContainer struct {
	config *config.Config
	logger *logger.Logger

	readingRepo interfaces.ReadingRepository
	redis       *redis.Client

	healthChecker *health.HealthChecker

	mu           sync.Mutex
	cleanupFuncs []func() error
}

// IngestorContainer manages dependencies for the MQTT ingestor service
type IngestorContainer struct {
	config *config.IngestorConfig
	logger *logger.Logger
}

// NewApiContainer loads the API configuration and builds the logger
func NewApiContainer() (*ApiContainer, error) {
	cfg, err := config.LoadApiConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load API configuration: %w", err)
	}
	return NewApiContainerWithConfig(cfg), nil
}

func NewApiContainerWithConfig(cfg *config.Config) *ApiContainer {
	log := logger.NewLogger(&cfg.Logging).WithService("eco-api")
	return &ApiContainer{
		config:        cfg,
		logger:        log,
		healthChecker: health.NewHealthChecker(),
	}
}

// NewIngestorContainer creates a new container for the MQTT ingestor service
func NewIngestorContainer() (*IngestorContainer, error) {
	cfg, err := config.LoadIngestorConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load ingestor configuration: %w", err)
	}

	return &IngestorContainer{
		config: cfg,
		logger: logger.NewLogger(&cfg.Logging).WithService("eco-ingestor"),
	}, nil
}

func (c *ApiContainer) GetConfig() *config.Config {
	return c.config
}

func (c *IngestorContainer) GetConfig() *config.IngestorConfig {
	return c.config
}

func (c *ApiContainer) GetLogger() *logger.Logger {
	return c.logger
}

func (c *IngestorContainer) GetLogger() *logger.Logger {
	return c.logger
}

// GetHealthChecker returns the checker every dependency registers with
func (c *ApiContainer) GetHealthChecker() *health.HealthChecker {
	return c.healthChecker
}

// GetReadingRepository opens the store selected by DB_DRIVER on first use.
// PostgreSQL tables are created here; SQLite is migrated by gorm.
func (c *ApiContainer) GetReadingRepository(ctx context.Context) (interfaces.ReadingRepository, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.readingRepo != nil {
		return c.readingRepo, nil
	}

	switch c.config.Database.Driver {
	case config.DriverPostgres:
		db, err := health.ConnectPostgresWithTimeout(c.config, 20*time.Second)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		c.cleanupFuncs = append(c.cleanupFuncs, db.Close)

		if err := health.NewDatabaseManager(db).CreateTables(ctx); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
		c.readingRepo = implementation.NewPostgresReadingRepository(db)

	case config.DriverSQLite:
		gdb, err := implementation.OpenSQLite(c.config.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		c.cleanupFuncs = append(c.cleanupFuncs, func() error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})

		repo, err := implementation.NewGormReadingRepository(gdb)
		if err != nil {
			return nil, err
		}
		c.readingRepo = repo

	default:
		return nil, fmt.Errorf("unsupported database driver %q", c.config.Database.Driver)
	}

	c.healthChecker.Register("store", c.readingRepo)
	c.logger.Logger.Info().Str("driver", c.config.Database.Driver).Msg("Reading store initialized")
	return c.readingRepo, nil
}

// GetRedis connects to the relay broker on first use
func (c *ApiContainer) GetRedis(ctx context.Context) (*redis.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.redis != nil {
		return c.redis, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     c.config.Redis.Addr,
		Password: c.config.Redis.Password,
		DB:       c.config.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", c.config.Redis.Addr, err)
	}

	c.redis = client
	c.cleanupFuncs = append(c.cleanupFuncs, client.Close)
	c.healthChecker.Register("redis", redisPinger{client})
	return client, nil
}

// AddCleanupFunc registers fn to run on Shutdown, before anything registered earlier
func (c *ApiContainer) AddCleanupFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

// Shutdown runs the cleanup functions in reverse order
func (c *ApiContainer) Shutdown(ctx context.Context) error {
	c.logger.Info("Shutting down container...")

	c.mu.Lock()
	funcs := c.cleanupFuncs
	c.cleanupFuncs = nil
	c.mu.Unlock()

	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](); err != nil {
			c.logger.ErrorWithError(err, "Error during cleanup")
		}
	}

	c.logger.Info("Container shutdown complete")
	return nil
}

func (c *IngestorContainer) Shutdown(ctx context.Context) error {
	c.logger.Info("Ingestor container shutdown complete")
	return nil
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
