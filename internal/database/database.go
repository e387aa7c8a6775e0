package database

import (
	"fmt"
	"log"

	"github.com/yukikurage/trade-erp-api/internal/config"
	"github.com/yukikurage/trade-erp-api/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	// pure Go sqlite driver registered as "sqlite"
	_ "modernc.org/sqlite"
)

var DB *gorm.DB

// AllModels lists every persisted model in migration order.
var AllModels = []interface{}{
	&models.User{},
	&models.Team{},
	&models.TeamMember{},
	&models.TaskList{},
	&models.Task{},
	&models.TaskAssignment{},
	&models.Supplier{},
	&models.Customer{},
	&models.Inquiry{},
	&models.Communication{},
	&models.CommunicationItem{},
	&models.CommunicationResend{},
}

func dialector(cfg *config.Config) (gorm.Dialector, error) {
	switch cfg.DBDriver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
		)
		return mysql.Open(dsn), nil
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
		)
		return postgres.Open(dsn), nil
	case "sqlite":
		return SQLiteDialector(cfg.DBPath), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
}

// SQLiteDialector opens path with the pure Go sqlite driver.
func SQLiteDialector(path string) gorm.Dialector {
	return sqlite.Dialector{DriverName: "sqlite", DSN: path}
}

func Connect(cfg *config.Config) error {
	d, err := dialector(cfg)
	if err != nil {
		return err
	}

	level := logger.Info
	if cfg.IsRelease() {
		level = logger.Warn
	}

	DB, err = gorm.Open(d, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.DBDriver == "sqlite" {
		// sqlite allows a single writer; keep one connection so transactions queue
		sqlDB, err := DB.DB()
		if err != nil {
			return fmt.Errorf("failed to get sqlite handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	log.Printf("Database connection established (%s)", cfg.DBDriver)
	return nil
}

// OpenMemory returns a migrated in-memory sqlite database.
func OpenMemory() (*gorm.DB, error) {
	db, err := gorm.Open(SQLiteDialector(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(AllModels...); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func Migrate() error {
	log.Println("Running database migrations...")
	if err := MigrateDatabase(DB); err != nil {
		return err
	}
	log.Println("Database migrations completed")
	return nil
}

func GetDB() *gorm.DB {
	return DB
}

// SetDB sets the database instance (used for testing)
func SetDB(db *gorm.DB) {
	DB = db
}
