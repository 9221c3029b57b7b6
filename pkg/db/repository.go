package db

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Sn0wAlice/rpi-os-flash/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for cached images and flash history
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository
func NewRepository(dbPath string) (*Repository, error) {
	slog.Debug("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Debug("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts a new image record
func (r *Repository) Create(img *Image) error {
	slog.Info("database_create_image", "url", img.URL, "status", img.Status)

	query := `
		INSERT INTO images (url, name, local_path, digest, size, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		img.URL, img.Name, img.LocalPath, img.Digest, img.Size, img.Status, img.ErrorMessage)
	if err != nil {
		slog.Error("database_insert_failed", "url", img.URL, "error", err)
		return errors.Wrap(err, "failed to insert image")
	}

	id, err := result.LastInsertId()
	if err != nil {
		slog.Error("database_last_insert_id_failed", "url", img.URL, "error", err)
		return errors.Wrap(err, "failed to get last insert id")
	}
	img.ID = id

	slog.Info("database_image_created", "url", img.URL, "image_id", img.ID, "status", img.Status)
	return nil
}

const imageColumns = `id, url, name, local_path, digest, size, status, error_message, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(s scanner) (*Image, error) {
	var img Image
	var localPath, dgst, errorMessage sql.NullString

	err := s.Scan(
		&img.ID, &img.URL, &img.Name, &localPath, &dgst, &img.Size, &img.Status, &errorMessage,
		&img.CreatedAt, &img.UpdatedAt)
	if err != nil {
		return nil, err
	}

	img.LocalPath = localPath.String
	img.Digest = dgst.String
	img.ErrorMessage = errorMessage.String
	return &img, nil
}

// GetByURL retrieves an image by its source URL. It returns nil, nil when absent.
func (r *Repository) GetByURL(url string) (*Image, error) {
	img, err := scanImage(r.db.QueryRow(`SELECT `+imageColumns+` FROM images WHERE url = ?`, url))
	if err == sql.ErrNoRows {
		slog.Debug("database_image_not_found", "url", url)
		return nil, nil
	}
	if err != nil {
		slog.Error("database_query_failed", "url", url, "error", err)
		return nil, errors.Wrap(err, "failed to query image")
	}
	return img, nil
}

// Update updates an existing image record
func (r *Repository) Update(img *Image) error {
	slog.Info("database_update_image", "image_id", img.ID, "url", img.URL, "status", img.Status)

	query := `
		UPDATE images
		SET name = ?, local_path = ?, digest = ?, size = ?, status = ?, error_message = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.db.Exec(query,
		img.Name, img.LocalPath, img.Digest, img.Size, img.Status, img.ErrorMessage, img.ID)
	if err != nil {
		slog.Error("database_update_failed", "image_id", img.ID, "url", img.URL, "error", err)
		return errors.Wrap(err, "failed to update image")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		slog.Error("database_rows_affected_failed", "image_id", img.ID, "error", err)
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		slog.Error("database_image_not_found_for_update", "image_id", img.ID)
		return fmt.Errorf("image not found: id=%d", img.ID)
	}

	return nil
}

// UpdateStatus updates only the status field
func (r *Repository) UpdateStatus(id int64, status, errorMessage string) error {
	slog.Info("database_update_status", "image_id", id, "status", status)

	query := `UPDATE images SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := r.db.Exec(query, status, errorMessage, id); err != nil {
		slog.Error("database_status_update_failed", "image_id", id, "status", status, "error", err)
		return errors.Wrap(err, "failed to update status")
	}
	return nil
}

// List retrieves all images
func (r *Repository) List() ([]*Image, error) {
	rows, err := r.db.Query(`SELECT ` + imageColumns + ` FROM images ORDER BY created_at DESC, id DESC`)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list images")
	}
	defer rows.Close()

	var images []*Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		images = append(images, img)
	}

	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Debug("database_list_complete", "image_count", len(images))
	return images, nil
}

// Delete deletes an image by ID
func (r *Repository) Delete(id int64) error {
	slog.Info("database_delete_image", "image_id", id)

	if _, err := r.db.Exec(`DELETE FROM images WHERE id = ?`, id); err != nil {
		slog.Error("database_delete_failed", "image_id", id, "error", err)
		return errors.Wrap(err, "failed to delete image")
	}
	return nil
}

// RecordFlash appends a flash attempt to the history
func (r *Repository) RecordFlash(f *Flash) error {
	query := `
		INSERT INTO flashes (run_id, image_name, image_location, device, device_label,
		                     bytes_total, bytes_written, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		f.RunID, f.ImageName, f.ImageLocation, f.Device, f.DeviceLabel,
		f.BytesTotal, f.BytesWritten, f.Status, f.ErrorMessage)
	if err != nil {
		slog.Error("database_record_flash_failed", "run_id", f.RunID, "error", err)
		return errors.Wrap(err, "failed to record flash")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to get last insert id")
	}
	f.ID = id

	slog.Info("database_flash_recorded", "run_id", f.RunID, "device", f.Device, "status", f.Status)
	return nil
}

// ListFlashes returns the most recent flash attempts first. limit <= 0 returns all.
func (r *Repository) ListFlashes(limit int) ([]*Flash, error) {
	query := `
		SELECT id, run_id, image_name, image_location, device, device_label,
		       bytes_total, bytes_written, status, error_message, created_at
		FROM flashes ORDER BY created_at DESC, id DESC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		slog.Error("database_list_flashes_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list flashes")
	}
	defer rows.Close()

	var flashes []*Flash
	for rows.Next() {
		var f Flash
		var label, errorMessage sql.NullString
		if err := rows.Scan(
			&f.ID, &f.RunID, &f.ImageName, &f.ImageLocation, &f.Device, &label,
			&f.BytesTotal, &f.BytesWritten, &f.Status, &errorMessage, &f.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		f.DeviceLabel = label.String
		f.ErrorMessage = errorMessage.String
		flashes = append(flashes, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return flashes, nil
}
