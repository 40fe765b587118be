// Package database 初始化文档登记表 (MySQL)、对话存储 (Redis) 与 pgvector 连接池。
package database

import (
	"drone-helpdesk-go/internal/model"
	"drone-helpdesk-go/pkg/log"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// DB 是文档登记表所在的数据库。
var DB *gorm.DB

// InitMySQL 打开连接池并迁移 documents 表。
func InitMySQL(dsn string) error {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("connect mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&model.Document{}); err != nil {
		return fmt.Errorf("migrate documents table: %w", err)
	}

	DB = db
	log.Info("MySQL 连接成功, documents 表已就绪")
	return nil
}
