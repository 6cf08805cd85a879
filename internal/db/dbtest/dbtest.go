// Package dbtest 为测试提供相互隔离的内存 SQLite 数据库。
package dbtest

import (
	"fmt"
	"testing"

	"github.com/WBHankins93/messaging-app/internal/db"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// New 打开一个已迁移的新内存数据库，测试结束时自动关闭。
func New(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	gdb, err := db.Connect("sqlite", dsn)
	if err != nil {
		t.Fatalf("dbtest: connect: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("dbtest: migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}
