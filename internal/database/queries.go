package database

const outboxSchema = `
CREATE TABLE IF NOT EXISTS outbox (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	text TEXT NOT NULL DEFAULT '',
	media_paths TEXT NOT NULL DEFAULT '[]',
	sticker_ref TEXT NOT NULL DEFAULT '',
	reply_to TEXT,
	last_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outbox_conversation ON outbox(conversation_id);
`

const (
	insertOutboxQuery = `
		INSERT INTO outbox (
			id, conversation_id, text, media_paths, sticker_ref,
			reply_to, last_error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			media_paths = excluded.media_paths,
			sticker_ref = excluded.sticker_ref,
			reply_to = excluded.reply_to,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`

	selectOutboxQuery = `
		SELECT id, conversation_id, text, media_paths, sticker_ref,
			reply_to, last_error, created_at, updated_at
		FROM outbox WHERE id = ?
	`

	listOutboxQuery = `
		SELECT id, conversation_id, text, media_paths, sticker_ref,
			reply_to, last_error, created_at, updated_at
		FROM outbox WHERE conversation_id = ?
		ORDER BY created_at ASC
	`

	deleteOutboxQuery = `DELETE FROM outbox WHERE id = ?`
)
