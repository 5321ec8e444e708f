package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"civitai-scraper/internal/database/models"
)

// ErrNotFound is returned by GetImage for an unknown id.
var ErrNotFound = errors.New("image not found")

const imageColumns = `
	id, filename, url, hash, width, height, post_id, username, nsfw, nsfw_level,
	prompt, negative_prompt, model, sampler, steps, cfg_scale, seed, loras,
	like_count, heart_count, comment_count, laugh_count, cry_count, dislike_count,
	image_created_at, scraped_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanImage(row rowScanner) (*models.Image, error) {
	image := &models.Image{}
	var imageCreatedAt, createdAt, updatedAt sql.NullTime
	err := row.Scan(
		&image.ID, &image.Filename, &image.URL, &image.Hash, &image.Width, &image.Height,
		&image.PostID, &image.Username, &image.NSFW, &image.NSFWLevel,
		&image.Prompt, &image.NegativePrompt, &image.Model, &image.Sampler, &image.Steps,
		&image.CFGScale, &image.Seed, &image.Loras,
		&image.LikeCount, &image.HeartCount, &image.CommentCount, &image.LaughCount,
		&image.CryCount, &image.DislikeCount,
		&imageCreatedAt, &image.ScrapedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	image.ImageCreatedAt = imageCreatedAt.Time
	image.CreatedAt = createdAt.Time
	image.UpdatedAt = updatedAt.Time
	return image, nil
}

// where builds the WHERE clause of filter with numbered placeholders.
func (f imageFilter) where() (string, []interface{}) {
	var conditions []string
	var args []interface{}

	switch f.NSFW {
	case "sfw":
		args = append(args, false)
		conditions = append(conditions, fmt.Sprintf("nsfw = $%d", len(args)))
	case "nsfw":
		args = append(args, true)
		conditions = append(conditions, fmt.Sprintf("nsfw = $%d", len(args)))
	}
	if f.Username != "" {
		args = append(args, f.Username)
		conditions = append(conditions, fmt.Sprintf("username = $%d", len(args)))
	}
	if f.Query != "" {
		args = append(args, "%"+strings.ToLower(f.Query)+"%")
		conditions = append(conditions, fmt.Sprintf("LOWER(prompt) LIKE $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

type imageFilter models.ImageFilter

// GetImagesWithPagination returns one page of catalog rows, newest first.
func (db *DB) GetImagesWithPagination(filter models.ImageFilter) ([]*models.Image, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 50
	}
	offset := (filter.Page - 1) * filter.PageSize

	where, args := imageFilter(filter).where()
	args = append(args, filter.PageSize, offset)
	query := fmt.Sprintf(`SELECT %s FROM images%s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		imageColumns, where, len(args)-1, len(args))

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var images []*models.Image
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, image)
	}
	return images, rows.Err()
}

// GetImagesCount returns the number of rows matching filter, ignoring paging.
func (db *DB) GetImagesCount(filter models.ImageFilter) (int, error) {
	where, args := imageFilter(filter).where()

	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM images"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get images count: %w", err)
	}
	return count, nil
}

func (db *DB) GetImage(id int64) (*models.Image, error) {
	row := db.conn.QueryRow(fmt.Sprintf(`SELECT %s FROM images WHERE id = $1`, imageColumns), id)
	image, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image %d: %w", id, err)
	}
	return image, nil
}

// GetImagesForExport returns every row matching filter, oldest first.
func (db *DB) GetImagesForExport(filter models.ImageFilter) ([]*models.Image, error) {
	where, args := imageFilter(filter).where()
	rows, err := db.conn.Query(fmt.Sprintf(`SELECT %s FROM images%s ORDER BY id`, imageColumns, where), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query images for export: %w", err)
	}
	defer rows.Close()

	var images []*models.Image
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, image)
	}
	return images, rows.Err()
}

// GetCatalogStats returns catalog-wide counters and the most used models.
func (db *DB) GetCatalogStats(topModels int) (*models.CatalogStats, error) {
	stats := &models.CatalogStats{}

	err := db.conn.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN nsfw THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN prompt <> '' THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT username)
		FROM images`).Scan(&stats.TotalImages, &stats.NSFWImages, &stats.WithPrompt, &stats.Users)
	if err != nil {
		return nil, fmt.Errorf("failed to get image counts: %w", err)
	}
	stats.SFWImages = stats.TotalImages - stats.NSFWImages

	// Last scraped timestamp
	var lastScraped sql.NullString
	if err := db.conn.QueryRow(`SELECT MAX(scraped_at) FROM images`).Scan(&lastScraped); err != nil {
		return nil, fmt.Errorf("failed to get last scraped time: %w", err)
	}
	if lastScraped.Valid {
		stats.LastScrapedAt = lastScraped.String
	} else {
		stats.LastScrapedAt = "Never"
	}

	rows, err := db.conn.Query(`
		SELECT model, COUNT(*) AS image_count FROM images
		WHERE model <> ''
		GROUP BY model
		ORDER BY image_count DESC, model
		LIMIT $1`, topModels)
	if err != nil {
		return nil, fmt.Errorf("failed to get top models: %w", err)
	}
	defer rows.Close()

	stats.TopModels = []models.ModelCount{}
	for rows.Next() {
		var mc models.ModelCount
		if err := rows.Scan(&mc.Model, &mc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan model count: %w", err)
		}
		stats.TopModels = append(stats.TopModels, mc)
	}
	return stats, rows.Err()
}
