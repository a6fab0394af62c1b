package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	db *gorm.DB
)

func init() {
	// Load env from .env
	godotenv.Load()
}

// DatabaseDSN builds the MySQL DSN from DB_USER, DB_PASSWORD, DB_HOST, DB_PORT and DB_NAME.
func DatabaseDSN() (string, error) {
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")
	if dbHost == "" || dbName == "" {
		return "", errors.New("DB_HOST and DB_NAME are required")
	}
	if dbPort == "" {
		dbPort = "3306"
	}

	network := "tcp"
	address := fmt.Sprintf("%s:%s", dbHost, dbPort)

	// Cloud SQL: DB_HOST=/cloudsql/<CONNECTION_NAME> connects over the proxy's unix socket.
	if strings.HasPrefix(dbHost, "/cloudsql/") {
		network = "unix"
		address = dbHost
	}

	return fmt.Sprintf("%s:%s@%s(%s)/%s?parseTime=true&loc=UTC",
		dbUser,
		dbPassword,
		network,
		address,
		dbName,
	), nil
}

// ConnectDatabaseWithRetry connects and sets the global DB, giving up after maxAttempts.
func ConnectDatabaseWithRetry(maxAttempts int) (*gorm.DB, error) {
	dsn, err := DatabaseDSN()
	if err != nil {
		return nil, err
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		conn, err := OpenDatabase(dsn)
		if err == nil {
			db = conn
			logg.WithField("attempt", attempt).Debug("connected to database")
			return db, nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		sleep := backoff(attempt)
		log.Printf("failed to connect database (attempt=%d): %v; retrying in %s", attempt, err, sleep)
		time.Sleep(sleep)
	}
	return nil, fmt.Errorf("connect database after %d attempts: %w", maxAttempts, lastErr)
}

// OpenDatabase opens one connection pool with the tracing plugin installed.
func OpenDatabase(dsn string) (*gorm.DB, error) {
	conn, err := gorm.Open(mysql.Open(dsn), initConfig())
	if err != nil {
		return nil, err
	}
	// Pool tuning env (optional):
	// - DB_MAX_OPEN_CONNS (default 10)
	// - DB_MAX_IDLE_CONNS (default 5)
	// - DB_CONN_MAX_LIFETIME_SECONDS (default 300)
	if sqlDB, derr := conn.DB(); derr == nil && sqlDB != nil {
		maxOpen := intFromEnv("DB_MAX_OPEN_CONNS", 10)
		maxIdle := intFromEnv("DB_MAX_IDLE_CONNS", 5)
		connMaxLife := time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second
		if maxOpen > 0 {
			sqlDB.SetMaxOpenConns(maxOpen)
		}
		if maxIdle >= 0 {
			sqlDB.SetMaxIdleConns(maxIdle)
		}
		if connMaxLife > 0 {
			sqlDB.SetConnMaxLifetime(connMaxLife)
		}
	}
	if pluginErr := conn.Use(otelgorm.NewPlugin()); pluginErr != nil {
		log.Printf("db connected but failed to install otelgorm plugin: %v", pluginErr)
	}
	return conn, nil
}

// CloseDatabase releases the global pool; safe to call when never connected.
func CloseDatabase() error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	db = nil
	return sqlDB.Close()
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func backoff(attempt int) time.Duration {
	if attempt > 5 {
		attempt = 5
	}
	sleep := time.Second * time.Duration(1<<attempt)
	if sleep > 30*time.Second {
		sleep = 30 * time.Second
	}
	return sleep
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         WriteGormLog(),
		NamingStrategy: initNamingStrategy(),
	}
}

func initLog() logger.Interface {
	return logger.New(
		log.New(os.Stderr, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      logger.Error,
			SlowThreshold: time.Second,
		},
	)
}

func initNamingStrategy() *schema.NamingStrategy {
	return &schema.NamingStrategy{
		SingularTable: false,
		TablePrefix:   "",
	}
}

// WriteGormLog logs every statement to GORM_LOG when set, which is how write-mode runs are audited by hand.
func WriteGormLog() logger.Interface {
	logFile := os.Getenv("GORM_LOG")
	if logFile == "" {
		return initLog()
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return initLog()
	}
	return logger.New(log.New(io.MultiWriter(f), "\r\n", log.LstdFlags), logger.Config{
		Colorful:      false,
		LogLevel:      logger.Info,
		SlowThreshold: time.Second,
	})
}
