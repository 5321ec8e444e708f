package database

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"

	"civitai-scraper/internal/config"
	"civitai-scraper/internal/database/models"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrations embed.FS

type DB struct {
	conn   *sql.DB
	driver string
	logger *logrus.Logger
}

// NewConnection opens the catalog described by cfg. Both drivers accept the
// numbered $n placeholders used by the queries in this package.
func NewConnection(cfg config.DatabaseConfig, logger *logrus.Logger) (*DB, error) {
	var dsn string
	switch cfg.Driver {
	case "postgres":
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
		logger.Infof("Connecting to database: host=%s port=%d dbname=%s user=%s", cfg.Host, cfg.Port, cfg.Name, cfg.User)
	case "sqlite3":
		dsn = cfg.Path
		logger.Infof("Opening database: %s", cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}

	conn, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Driver == "sqlite3" {
		// a single writer avoids "database is locked" on concurrent statements
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established")
	return &DB{
		conn:   conn,
		driver: cfg.Driver,
		logger: logger,
	}, nil
}

func (db *DB) Driver() string {
	return db.driver
}

// RunMigrations applies the embedded migration files in name order. Every
// statement is idempotent.
func (db *DB) RunMigrations() error {
	db.logger.Info("Running database migrations...")

	files, err := migrations.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		db.logger.Debugf("Running migration: %s", name)

		content, err := migrations.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := db.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
	}

	db.logger.Info("Migrations completed successfully")
	return nil
}

// SaveImage inserts the image or refreshes the mutable columns of an existing row.
func (db *DB) SaveImage(image *models.Image) error {
	query := `
		INSERT INTO images (
			id, filename, url, hash, width, height, post_id, username, nsfw, nsfw_level,
			prompt, negative_prompt, model, sampler, steps, cfg_scale, seed, loras,
			like_count, heart_count, comment_count, laugh_count, cry_count, dislike_count,
			image_created_at, scraped_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26
		) ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename,
			url = EXCLUDED.url,
			nsfw = EXCLUDED.nsfw,
			nsfw_level = EXCLUDED.nsfw_level,
			prompt = EXCLUDED.prompt,
			negative_prompt = EXCLUDED.negative_prompt,
			loras = EXCLUDED.loras,
			like_count = EXCLUDED.like_count,
			heart_count = EXCLUDED.heart_count,
			comment_count = EXCLUDED.comment_count,
			laugh_count = EXCLUDED.laugh_count,
			cry_count = EXCLUDED.cry_count,
			dislike_count = EXCLUDED.dislike_count,
			scraped_at = EXCLUDED.scraped_at,
			updated_at = CURRENT_TIMESTAMP`

	_, err := db.conn.Exec(query,
		image.ID, image.Filename, image.URL, image.Hash, image.Width, image.Height,
		image.PostID, image.Username, image.NSFW, image.NSFWLevel,
		image.Prompt, image.NegativePrompt, image.Model, image.Sampler, image.Steps,
		image.CFGScale, image.Seed, image.Loras,
		image.LikeCount, image.HeartCount, image.CommentCount, image.LaughCount,
		image.CryCount, image.DislikeCount, image.ImageCreatedAt, image.ScrapedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save image %d: %w", image.ID, err)
	}
	return nil
}

// SetNSFW changes the classification of the row whose filename matches.
func (db *DB) SetNSFW(filename string, nsfw bool) error {
	_, err := db.conn.Exec(`UPDATE images SET nsfw = $1, updated_at = CURRENT_TIMESTAMP WHERE filename = $2`, nsfw, filename)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", filename, err)
	}
	return nil
}

// Ping checks if the database connection is alive
func (db *DB) Ping() error {
	return db.conn.Ping()
}

func (db *DB) Close() error {
	return db.conn.Close()
}
