// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/brawer/missingpedia/internal/wikidump"
)

var ErrUnsupportedDSN = errors.New("unsupported database DSN")

// Store is the relational store for articles, categories and links.
// In production, it is backed by PostgreSQL; tests and small local
// runs use SQLite.
type Store struct {
	db     *gorm.DB
	logger *log.Logger
}

// Open connects to the database given by dsn, which is either
// a PostgreSQL URL such as "postgres://user@host/missingpedia",
// or "sqlite:" followed by the path to a database file.
func Open(ctx context.Context, dsn string, logger *log.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		dialector = postgres.Open(dsn)
	case strings.HasPrefix(dsn, "sqlite:"):
		dialector = sqlite.Open(strings.TrimPrefix(dsn, "sqlite:"))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDSN, redact(dsn))
	}

	gl := gormlogger.Discard
	if logger != nil {
		gl = gormlogger.New(logger, gormlogger.Config{
			SlowThreshold:             30 * time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gl,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot connect to %s: %w", redact(dsn), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if db.Dialector.Name() == "sqlite" {
		// SQLite temporary tables live in one connection only.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("cannot connect to %s: %w", redact(dsn), err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Migrate creates the relations and their indexes, unless they exist already.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&wikidump.Article{},
		&wikidump.Category{},
		&wikidump.CategoryLink{},
		&wikidump.PageCategoryLink{},
		&wikidump.LangLink{},
	)
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// Dialect returns "postgres" or "sqlite".
func (s *Store) Dialect() string {
	return s.db.Dialector.Name()
}

// Count returns the number of rows in the relation of model
// that belong to a language edition. For lang links, this is
// the source language.
func (s *Store) Count(ctx context.Context, model any, lang string) (int64, error) {
	column := "language"
	if _, ok := model.(*wikidump.LangLink); ok {
		column = "from_lang"
	}
	var n int64
	err := s.db.WithContext(ctx).Model(model).Where(column+" = ?", lang).Count(&n).Error
	return n, err
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Redact removes the password from a database URL, so it can be logged.
func redact(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	userinfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	if user, _, hasPassword := strings.Cut(userinfo, ":"); hasPassword {
		return scheme + "://" + user + ":xxxxx@" + host
	}
	return dsn
}
