package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/WBHankins93/messaging-app/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const connectAttempts = 10

// Connect 按驱动建立数据库连接，并带有简单的重试来等待容器就绪。
// TranslateError 打开后，唯一索引冲突统一翻译为 gorm.ErrDuplicatedKey。
func Connect(driver, dsn string) (*gorm.DB, error) {
	dialector, err := dialectorFor(driver, dsn)
	if err != nil {
		return nil, err
	}
	gcfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}

	var gdb *gorm.DB
	for i := 0; i < connectAttempts; i++ {
		gdb, err = gorm.Open(dialector, gcfg)
		if err == nil {
			sqlDB, err2 := gdb.DB()
			if err2 == nil {
				configurePool(driver, sqlDB)
				return gdb, nil
			}
			err = err2
		}
		log.Warn().Err(err).Int("attempt", i+1).Str("driver", driver).Msg("db connect retry")
		time.Sleep(time.Duration(500+i*200) * time.Millisecond)
	}
	return nil, err
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "postgres":
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// SQLite 只允许单连接写入，内存库也依赖同一个连接存活。
func configurePool(driver string, sqlDB *sql.DB) {
	if driver == "sqlite" {
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetMaxOpenConns(1)
		return
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)
}

// Migrate 自动迁移 users 与 messages 两张表。
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&models.User{}, &models.Message{})
}
