package config

import (
	"context"
	"fmt"
	"time"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/anonto42/nano-midea/notifications/internal/repositories"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB holds the database connections of the configured store. Both are nil
// for the memory store.
type DB struct {
	Postgres *gorm.DB
	Mongo    *mongo.Client
	MongoDB  *mongo.Database
	log      *zap.Logger
}

// InitDB opens the connection the configured notification store needs
func InitDB(ctx context.Context, cfg *Config, log *zap.Logger) (*DB, error) {
	db := &DB{log: log.With(zap.String("component", "db"))}

	switch cfg.NotificationStore {
	case StorePostgres:
		pg, err := initPostgres(cfg.PostgresUrl)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		db.Postgres = pg
		db.log.Info("Successfully connected to PostgreSQL!")
	case StoreMongo:
		client, err := initMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		db.Mongo = client
		db.MongoDB = client.Database(cfg.MongoDatabase)
		db.log.Info("Successfully connected to MongoDB!", zap.String("database", cfg.MongoDatabase))
	default:
		db.log.Warn("Using in-memory notification store; data is lost on restart.")
	}
	return db, nil
}

// initPostgres initializes the PostgreSQL database connection using GORM
func initPostgres(connStr string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(connStr), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err = sqlDB.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

// initMongo initializes the MongoDB connection
func initMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// Repositories returns the notification and user stores backed by the open
// connection, falling back to in-memory stores.
func (db *DB) Repositories() (repositories.NotificationRepository, repositories.UserRepository) {
	switch {
	case db.Postgres != nil:
		return repositories.NewPostgresNotificationRepository(db.Postgres), repositories.NewPostgresUserRepository(db.Postgres)
	case db.MongoDB != nil:
		return repositories.NewMongoNotificationRepository(db.MongoDB), repositories.NewMongoUserRepository(db.MongoDB)
	default:
		return repositories.NewMemoryNotificationRepository(), repositories.NewMemoryUserRepository()
	}
}

// Migrate creates the tables or indexes of the configured store.
func (db *DB) Migrate(ctx context.Context) error {
	if db.Postgres != nil {
		if err := db.Postgres.WithContext(ctx).AutoMigrate(&models.User{}, &models.Notification{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		db.log.Info("PostgreSQL auto-migrations completed.")
	}
	if db.MongoDB != nil {
		if err := repositories.EnsureNotificationIndexes(ctx, db.MongoDB); err != nil {
			return fmt.Errorf("ensure indexes: %w", err)
		}
		db.log.Info("MongoDB indexes ensured.")
	}
	return nil
}

// Ping reports whether the store is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if db.Postgres != nil {
		sqlDB, err := db.Postgres.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return err
		}
	}
	if db.Mongo != nil {
		return db.Mongo.Ping(ctx, readpref.Primary())
	}
	return nil
}

// CloseDB closes the database connections
func (db *DB) CloseDB() {
	if db.Postgres != nil {
		sqlDB, err := db.Postgres.DB()
		if err != nil {
			db.log.Error("Error getting SQL DB from GORM", zap.Error(err))
		} else if err := sqlDB.Close(); err != nil {
			db.log.Error("Error closing PostgreSQL connection", zap.Error(err))
		} else {
			db.log.Info("PostgreSQL connection closed.")
		}
	}

	if db.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Mongo.Disconnect(ctx); err != nil {
			db.log.Error("Error closing MongoDB connection", zap.Error(err))
		} else {
			db.log.Info("MongoDB connection closed.")
		}
	}
}
