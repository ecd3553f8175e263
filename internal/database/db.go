package database

import (
	"database/sql"
	"fmt"
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Config holds database configuration
type Config struct {
	Path string // Path to SQLite database file
}

// DB is the packet and RSSI scan store
type DB struct {
	db *gorm.DB
}

// NewDB opens the SQLite store through the pure Go driver and migrates it
func NewDB(config Config, log *log.Logger) (*DB, error) {
	// Configure GORM logger
	var gormLog logger.Interface
	if log != nil {
		gormLog = logger.New(
			log,
			logger.Config{
				LogLevel:                  logger.Warn, // Only log warnings and errors
				IgnoreRecordNotFoundError: true,        // Don't log "record not found" errors
				Colorful:                  false,       // No color in logs
			},
		)
	} else {
		gormLog = logger.Default.LogMode(logger.Silent)
	}

	// Create dialector with pure Go SQLite driver
	dialector := sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        config.Path,
	}

	// Open database connection
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", config.Path, err)
	}

	// Get underlying SQL DB for PRAGMA settings
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Configure SQLite pragmas
	if err := configureSQLite(sqlDB); err != nil {
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	// Auto-migrate database schema
	if err := db.AutoMigrate(&Packet{}, &RssiSample{}); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", config.Path, err)
	}

	if log != nil {
		log.Printf("Database initialized: %s", config.Path)
	}

	return &DB{db: db}, nil
}

// configureSQLite applies the WAL journal and busy timeout
func configureSQLite(sqlDB *sql.DB) error {
	pragmaSettings := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=memory",
	}

	for _, pragma := range pragmaSettings {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return err
		}
	}

	return nil
}

// GetDB returns the underlying GORM database instance
func (db *DB) GetDB() *gorm.DB {
	return db.db
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks if the database connection is healthy
func (db *DB) Health() error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Packets returns a repository for received packets
func (db *DB) Packets() *PacketRepository {
	return NewPacketRepository(db.db)
}

// Rssi returns a repository for channel scans
func (db *DB) Rssi() *RssiRepository {
	return NewRssiRepository(db.db)
}