package merkle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// nodeRecord is the row layout of the nodes table.
type nodeRecord struct {
	Hash       string    `gorm:"primaryKey;size:64"`
	ParentHash *string   `gorm:"index;size:64"`
	Bucket     string    `gorm:"type:text;not null"`
	Meta       *string   `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index"`
}

func (nodeRecord) TableName() string { return "nodes" }

// SQLiteStorer persists the DAG in a SQLite database.
type SQLiteStorer struct {
	db *gorm.DB
}

var _ Storer = (*SQLiteStorer)(nil)

// NewSQLiteStorer opens (creating if needed) the database at path. Use
// ":memory:" for a throwaway store.
func NewSQLiteStorer(path string) (*SQLiteStorer, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql handle: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&nodeRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate nodes table: %w", err)
	}

	return &SQLiteStorer{db: db}, nil
}

func (s *SQLiteStorer) Put(ctx context.Context, node *Node) (bool, error) {
	if node == nil {
		return false, errNilNode
	}

	rec, err := toRecord(node)
	if err != nil {
		return false, err
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec)
	if result.Error != nil {
		return false, fmt.Errorf("insert node %s: %w", node.Hash, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *SQLiteStorer) Get(ctx context.Context, hash string) (*Node, error) {
	var rec nodeRecord
	err := s.db.WithContext(ctx).Where("hash = ?", hash).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound{Hash: hash}
	}
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", hash, err)
	}
	return fromRecord(&rec)
}

func (s *SQLiteStorer) Has(ctx context.Context, hash string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&nodeRecord{}).Where("hash = ?", hash).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check node %s: %w", hash, err)
	}
	return count > 0, nil
}

func (s *SQLiteStorer) GetByParent(ctx context.Context, parentHash *string) ([]*Node, error) {
	q := s.db.WithContext(ctx)
	if parentHash == nil {
		q = q.Where("parent_hash IS NULL")
	} else {
		q = q.Where("parent_hash = ?", *parentHash)
	}
	return s.find(q)
}

func (s *SQLiteStorer) List(ctx context.Context) ([]*Node, error) {
	return s.find(s.db.WithContext(ctx))
}

func (s *SQLiteStorer) Roots(ctx context.Context) ([]*Node, error) {
	return s.GetByParent(ctx, nil)
}

func (s *SQLiteStorer) Leaves(ctx context.Context) ([]*Node, error) {
	parents := s.db.Model(&nodeRecord{}).Select("parent_hash").Where("parent_hash IS NOT NULL")
	return s.find(s.db.WithContext(ctx).Where("hash NOT IN (?)", parents))
}

func (s *SQLiteStorer) Ancestry(ctx context.Context, hash string) ([]*Node, error) {
	return ancestry(ctx, s.Get, hash)
}

func (s *SQLiteStorer) Descendants(ctx context.Context, hash string) ([]*Node, error) {
	return descendants(ctx, s.Get, hash)
}

func (s *SQLiteStorer) Depth(ctx context.Context, hash string) (int, error) {
	return depth(ctx, s.Get, hash)
}

func (s *SQLiteStorer) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteStorer) find(q *gorm.DB) ([]*Node, error) {
	var recs []nodeRecord
	if err := q.Order("created_at, hash").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}

	nodes := make([]*Node, 0, len(recs))
	for i := range recs {
		n, err := fromRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func toRecord(n *Node) (*nodeRecord, error) {
	bucket, err := json.Marshal(n.Bucket)
	if err != nil {
		return nil, fmt.Errorf("marshal bucket: %w", err)
	}

	rec := &nodeRecord{
		Hash:       n.Hash,
		ParentHash: n.ParentHash,
		Bucket:     string(bucket),
	}
	if n.Meta != nil {
		meta, err := json.Marshal(n.Meta)
		if err != nil {
			return nil, fmt.Errorf("marshal meta: %w", err)
		}
		m := string(meta)
		rec.Meta = &m
	}
	return rec, nil
}

func fromRecord(rec *nodeRecord) (*Node, error) {
	n := &Node{Hash: rec.Hash, ParentHash: rec.ParentHash}
	if err := json.Unmarshal([]byte(rec.Bucket), &n.Bucket); err != nil {
		return nil, fmt.Errorf("unmarshal bucket of %s: %w", rec.Hash, err)
	}
	if rec.Meta != nil {
		n.Meta = &Meta{}
		if err := json.Unmarshal([]byte(*rec.Meta), n.Meta); err != nil {
			return nil, fmt.Errorf("unmarshal meta of %s: %w", rec.Hash, err)
		}
	}
	return n, nil
}
