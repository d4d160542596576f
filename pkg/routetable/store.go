package routetable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/psaab/iproute2/pkg/grammar"
)

// ErrTableNotFound is returned for an unknown table name.
var ErrTableNotFound = errors.New("routing table not found")

// TableRecord is the persisted form of a Table.
type TableRecord struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"uniqueIndex;not null"`
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RouteRecord is one route of a table, stored as canonical text.
type RouteRecord struct {
	ID       uint   `gorm:"primaryKey"`
	TableID  uint   `gorm:"uniqueIndex:idx_route_table_key;not null"`
	Key      string `gorm:"size:64;uniqueIndex:idx_route_table_key;not null"`
	Position int
	Text     string `gorm:"not null"`
}

// TableInfo summarises a stored table.
type TableInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Routes      int64  `json:"routes"`
}

// Store persists tables in a sqlite database.
type Store struct {
	db     *gorm.DB
	parser *grammar.Parser
}

// Open opens (creating if needed) the database at path. Stored routes are
// re-parsed with parser when loaded. ":memory:" gives a private in-memory
// database.
func Open(path string, parser *grammar.Parser) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open route store %s: %w", path, err)
	}
	if path == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// every pooled connection would otherwise see its own database
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&TableRecord{}, &RouteRecord{}); err != nil {
		return nil, fmt.Errorf("migrate route store: %w", err)
	}
	if parser == nil {
		parser = grammar.NewParser(grammar.Options{})
	}
	slog.Info("route store opened", "path", path)
	return &Store{db: db, parser: parser}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveTable replaces the stored copy of t.
func (s *Store) SaveTable(ctx context.Context, t *Table) error {
	routes := t.Routes()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec TableRecord
		err := tx.Where("name = ?", t.Name).First(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec = TableRecord{Name: t.Name, Description: t.Description}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := tx.Model(&rec).Update("description", t.Description).Error; err != nil {
				return err
			}
			if err := tx.Where("table_id = ?", rec.ID).Delete(&RouteRecord{}).Error; err != nil {
				return err
			}
		}
		if len(routes) == 0 {
			return nil
		}
		rows := make([]RouteRecord, 0, len(routes))
		for i, r := range routes {
			rows = append(rows, RouteRecord{TableID: rec.ID, Key: Key(r), Position: i, Text: r.String()})
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("save table %s: %w", t.Name, err)
	}
	slog.Debug("table saved", "table", t.Name, "routes", len(routes))
	return nil
}

// LoadTable reads a table back, re-parsing every stored route.
func (s *Store) LoadTable(ctx context.Context, name string) (*Table, error) {
	db := s.db.WithContext(ctx)
	var rec TableRecord
	if err := db.Where("name = ?", name).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s: %w", name, ErrTableNotFound)
		}
		return nil, fmt.Errorf("load table %s: %w", name, err)
	}
	var rows []RouteRecord
	if err := db.Where("table_id = ?", rec.ID).Order("position").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load routes of %s: %w", name, err)
	}
	t := New(rec.Name, rec.Description)
	for _, row := range rows {
		r, err := s.parser.Parse(strings.Fields(row.Text))
		if err != nil {
			return nil, fmt.Errorf("table %s route %q: %w", name, row.Text, err)
		}
		t.Add(r)
	}
	return t, nil
}

// DeleteTable removes a table and its routes.
func (s *Store) DeleteTable(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec TableRecord
		if err := tx.Where("name = ?", name).First(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%s: %w", name, ErrTableNotFound)
			}
			return err
		}
		if err := tx.Where("table_id = ?", rec.ID).Delete(&RouteRecord{}).Error; err != nil {
			return err
		}
		return tx.Delete(&rec).Error
	})
}

// ListTables returns every stored table ordered by name.
func (s *Store) ListTables(ctx context.Context) ([]TableInfo, error) {
	var infos []TableInfo
	err := s.db.WithContext(ctx).Model(&TableRecord{}).
		Select("table_records.name, table_records.description, count(route_records.id) as routes").
		Joins("left join route_records on route_records.table_id = table_records.id").
		Group("table_records.id").
		Order("table_records.name").
		Scan(&infos).Error
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return infos, nil
}
