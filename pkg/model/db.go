package model

import (
	"fmt"
	"time"

	"vmledger/pkg/config"
	"vmledger/pkg/model/xgorm"
	"vmledger/pkg/xlog"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var (
	db     *gorm.DB
	rds    *redis.Client
	logger = xlog.GetLogger()

	dbSlience *gorm.DB
)

// DBInit opens the enabled mysql and redis clients, fatal if mysql is unreachable.
func DBInit() {
	if config.Shared.MySQL.Main.Enabled {
		db = OpenMySQL()
		dbSlience = OpenMySQLRaw("slience")
	}
	if config.Shared.Redis.Main.Enabled {
		rds = OpenRedis("main")
	}
}

func OpenMySQL() *gorm.DB {
	return OpenMySQLRaw("main")
}

func OpenMySQLRaw(name string) *gorm.DB {
	d, err := ConnectMySQL(name, config.Shared.MySQL.Main, config.Shared.IsDebug)
	if err != nil {
		logger.Fatalf("connect mysql(%s) failed, err:%s", name, err)
	}
	return d
}

// ConnectMySQL opens cfg. The "slience" connection never logs SQL.
func ConnectMySQL(name string, cfg config.MySQLServer, debug bool) (d *gorm.DB, err error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("empty db host for %s", name)
	}

	logger.Infof("mysql(%s) connecting tcp(%s:%d)/%s", name, cfg.Host, cfg.Port, cfg.DB)

	url := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User, cfg.Pass, cfg.Host, cfg.Port, cfg.DB,
	)

	logMode := gormLogger.Warn
	if debug {
		logMode = gormLogger.Info
	}
	if name == "slience" {
		logMode = gormLogger.Silent
	}

	d, err = gorm.Open(mysql.Open(url), &gorm.Config{
		SkipDefaultTransaction: false,
		Logger: xgorm.New(xgorm.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logMode,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return
	}

	sqlDB, err := d.DB()
	if err != nil {
		return
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(10 * time.Hour)
	sqlDB.SetMaxIdleConns(20)

	logger.Infof("mysql(%s) connected tcp(%s:%d)/%s", name, cfg.Host, cfg.Port, cfg.DB)
	return
}

// Migrate creates or updates every table
func Migrate(d *gorm.DB) error {
	return d.AutoMigrate(All()...)
}

func OpenRedis(name string) *redis.Client {
	cfg := config.Shared.Redis.Main
	if rds != nil {
		return rds
	}

	logger.Infof("redis(%s) connecting %s[%d]", name, cfg.Addr, cfg.DB)

	opts := redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Pass,
		DB:       cfg.DB,
	}
	if cfg.Timeout > 0 {
		opts.ReadTimeout = time.Duration(cfg.Timeout) * time.Second
		opts.WriteTimeout = opts.ReadTimeout
	}

	return redis.NewClient(&opts)
}

func GetRedis() *redis.Client {
	return rds
}

func GetMySQL() *gorm.DB {
	return db
}

// GetMySQLSlience this instance reduces sql statement output
func GetMySQLSlience() *gorm.DB {
	return dbSlience
}
