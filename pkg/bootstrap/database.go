package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"poshook/internal/config"
	"poshook/internal/constants"
	"poshook/internal/journal"
	"poshook/internal/logger"
	"poshook/pkg/health"
	"poshook/pkg/migrations"
)

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

// Databases holds whichever clients the journal backend opened.
type Databases struct {
	Redis    *redis.Client
	Postgres *sql.DB
	Mongo    *mongo.Client
}

// RegisterHealth adds a checker for every open client.
func (d *Databases) RegisterHealth(registry *health.CheckerRegistry) {
	if d == nil {
		return
	}
	if d.Redis != nil {
		registry.Register(health.NewRedisChecker(d.Redis))
	}
	if d.Postgres != nil {
		registry.Register(health.NewPostgreSQLChecker(d.Postgres))
	}
	if d.Mongo != nil {
		registry.Register(health.NewMongoDBChecker(d.Mongo))
	}
}

// InitJournal opens the configured journal backend and prepares its schema.
// It returns a nil store when the journal is disabled.
func (dc *DatabaseConnector) InitJournal(ctx context.Context) (journal.Store, *Databases, error) {
	cfg := dc.Config.Journal
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	dbs := &Databases{}

	switch cfg.Backend {
	case "", constants.JournalBackendNone:
		dc.Logger.Info("Delivery journal disabled")
		return nil, dbs, nil

	case constants.JournalBackendRedis:
		rdb, err := dc.InitRedis(ctx)
		if err != nil {
			return nil, nil, err
		}
		dbs.Redis = rdb
		return journal.NewRedisStore(rdb, ttl), dbs, nil

	case constants.JournalBackendPostgres:
		db, err := dc.InitPostgreSQL(ctx)
		if err != nil {
			return nil, nil, err
		}
		if db == nil {
			return nil, nil, fmt.Errorf("postgres journal requires database.postgres.host")
		}
		dbs.Postgres = db

		if dc.Config.Database.RunMigrations {
			if err := migrations.RunPostgres(db); err != nil {
				db.Close()
				return nil, nil, fmt.Errorf("failed to run postgres migrations: %w", err)
			}
			dc.Logger.Info("PostgreSQL migrations applied")
		}
		return journal.NewPostgresStore(db), dbs, nil

	case constants.JournalBackendMongoDB:
		client, err := dc.InitMongoDB(ctx)
		if err != nil {
			return nil, nil, err
		}
		if client == nil {
			return nil, nil, fmt.Errorf("mongodb journal requires database.mongodb.uri")
		}
		dbs.Mongo = client

		name := dc.Config.Database.MongoDB.Database
		if name == "" {
			name = constants.DefaultMongoDBName
		}
		db := client.Database(name)

		if dc.Config.Database.RunMigrations {
			if err := migrations.EnsureJournalIndexes(ctx, db, int32(cfg.TTLSeconds)); err != nil {
				client.Disconnect(ctx)
				return nil, nil, fmt.Errorf("failed to create mongodb indexes: %w", err)
			}
			dc.Logger.Info("MongoDB indexes ensured")
		}
		return journal.NewMongoStore(db), dbs, nil

	default:
		return nil, nil, fmt.Errorf("unknown journal backend: %s", cfg.Backend)
	}
}

func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", dc.Config.Database.Redis.Host, dc.Config.Database.Redis.Port),
		Password: dc.Config.Database.Redis.Password,
		DB:       dc.Config.Database.Redis.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	dc.Logger.Info("Redis connected successfully")
	return rdb, nil
}

func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sql.DB, error) {
	if dc.Config.Database.Postgres.Host == "" {
		return nil, nil
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		dc.Config.Database.Postgres.User,
		dc.Config.Database.Postgres.Password,
		dc.Config.Database.Postgres.Host,
		dc.Config.Database.Postgres.Port,
		dc.Config.Database.Postgres.DBName,
		dc.Config.Database.Postgres.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dc.Logger.Info("PostgreSQL connected successfully")
	return db, nil
}

func (dc *DatabaseConnector) InitMongoDB(ctx context.Context) (*mongo.Client, error) {
	if dc.Config.Database.MongoDB.URI == "" {
		return nil, nil
	}

	mongoOpts := options.Client().ApplyURI(dc.Config.Database.MongoDB.URI)
	mongoClient, err := mongo.Connect(ctx, mongoOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := mongoClient.Ping(ctx, nil); err != nil {
		mongoClient.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dc.Logger.Info("MongoDB connected successfully")
	return mongoClient, nil
}

func (dc *DatabaseConnector) ShutdownDatabases(ctx context.Context, dbs *Databases) []error {
	if dbs == nil {
		return nil
	}

	var errs []error

	if dbs.Redis != nil {
		if err := dbs.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if dbs.Postgres != nil {
		if err := dbs.Postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close error: %w", err))
		}
	}

	if dbs.Mongo != nil {
		if err := dbs.Mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect error: %w", err))
		}
	}

	return errs
}
