package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"chatsync/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// Database holds the local outbox of failed sends. Text, media paths,
// and reply snapshots are encrypted at rest when encryption is enabled.
type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(outboxSchema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// SaveRecord inserts or refreshes one parked send.
func (d *Database) SaveRecord(ctx context.Context, record *models.OutboxRecord) error {
	encryptedText, err := d.encryptor.EncryptIfEnabled(record.Text)
	if err != nil {
		return fmt.Errorf("failed to encrypt text: %w", err)
	}

	mediaJSON, err := json.Marshal(record.MediaPaths)
	if err != nil {
		return fmt.Errorf("failed to marshal media paths: %w", err)
	}
	encryptedMedia, err := d.encryptor.EncryptIfEnabled(string(mediaJSON))
	if err != nil {
		return fmt.Errorf("failed to encrypt media paths: %w", err)
	}

	var replyJSON sql.NullString
	if record.ReplyTo != nil {
		raw, err := json.Marshal(record.ReplyTo)
		if err != nil {
			return fmt.Errorf("failed to marshal reply snapshot: %w", err)
		}
		encrypted, err := d.encryptor.EncryptIfEnabled(string(raw))
		if err != nil {
			return fmt.Errorf("failed to encrypt reply snapshot: %w", err)
		}
		replyJSON = sql.NullString{String: encrypted, Valid: true}
	}

	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, insertOutboxQuery,
			record.ID,
			record.ConversationID,
			encryptedText,
			encryptedMedia,
			record.StickerRef,
			replyJSON,
			record.LastError,
			record.CreatedAt,
			record.UpdatedAt,
		)
		return err
	}, "save outbox record")
}

// GetRecord returns one parked send, or nil when the ID is unknown.
func (d *Database) GetRecord(ctx context.Context, id string) (*models.OutboxRecord, error) {
	row := d.db.QueryRowContext(ctx, selectOutboxQuery, id)
	record, err := d.scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox record: %w", err)
	}
	return record, nil
}

// ListRecords returns the parked sends of one conversation, oldest first.
func (d *Database) ListRecords(ctx context.Context, conversationID string) ([]models.OutboxRecord, error) {
	rows, err := d.db.QueryContext(ctx, listOutboxQuery, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox records: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []models.OutboxRecord
	for rows.Next() {
		record, err := d.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox record: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox records: %w", err)
	}
	return records, nil
}

// DeleteRecord removes a parked send after a successful replay.
func (d *Database) DeleteRecord(ctx context.Context, id string) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, deleteOutboxQuery, id)
		return err
	}, "delete outbox record")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (d *Database) scanRecord(row rowScanner) (*models.OutboxRecord, error) {
	var record models.OutboxRecord
	var encryptedText, encryptedMedia string
	var replyJSON sql.NullString

	err := row.Scan(
		&record.ID,
		&record.ConversationID,
		&encryptedText,
		&encryptedMedia,
		&record.StickerRef,
		&replyJSON,
		&record.LastError,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Text, err = d.encryptor.DecryptIfEnabled(encryptedText)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt text: %w", err)
	}

	mediaJSON, err := d.encryptor.DecryptIfEnabled(encryptedMedia)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt media paths: %w", err)
	}
	if err := json.Unmarshal([]byte(mediaJSON), &record.MediaPaths); err != nil {
		return nil, fmt.Errorf("failed to unmarshal media paths: %w", err)
	}

	if replyJSON.Valid {
		raw, err := d.encryptor.DecryptIfEnabled(replyJSON.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt reply snapshot: %w", err)
		}
		var snapshot models.ReplySnapshot
		if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reply snapshot: %w", err)
		}
		record.ReplyTo = &snapshot
	}

	return &record, nil
}
