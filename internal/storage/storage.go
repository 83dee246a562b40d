package storage

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"cdpnetflow/internal/logger"
)

// Exchange 一次网络往返的落库记录，头部以 JSON 编码保序存储
type Exchange struct {
	ID        string `gorm:"primarykey;size:36"`
	SessionID string `gorm:"index;size:36"`

	RequestSeq int64  `gorm:"index"`
	WireID     string `gorm:"size:64"`

	URL          string `gorm:"index"`
	Method       string `gorm:"size:16"`
	ResourceType string `gorm:"size:32"`
	Navigation   bool
	FrameID      string `gorm:"size:64"`
	DocumentURL  string

	Status      int
	StatusText  string `gorm:"size:128"`
	MimeType    string `gorm:"size:128"`
	Protocol    string `gorm:"size:16"`
	RemoteAddr  string `gorm:"size:64"`
	FromFulfill bool

	RequestHeaders  string
	ResponseHeaders string

	PostData          []byte
	PostDataTruncated bool
	Body              []byte
	BodyTruncated     bool

	Failure string `gorm:"size:128"`
	Aborted bool

	RequestHeadersSize   int64
	RequestBodySize      int64
	ResponseHeadersSize  int64
	ResponseBodySize     int64
	ResponseTransferSize int64

	// Unix 毫秒
	StartedAt   int64 `gorm:"index"`
	CompletedAt int64
}

// Open 打开 SQLite 存储并迁移表结构
func Open(dsn, prefix string, l logger.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(l),
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&Exchange{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return db, nil
}
