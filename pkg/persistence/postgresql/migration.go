package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE oauth_tokens (
				scope VARCHAR(512) PRIMARY KEY,
				access_token TEXT NOT NULL,
				refresh_token TEXT,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_oauth_tokens_updated_at ON oauth_tokens(updated_at);
		`,
		2: `
			CREATE TABLE pending_deliveries (
				owner VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				request JSONB NOT NULL,
				appended_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT clock_timestamp(),
				seq BIGSERIAL,
				PRIMARY KEY (owner, id)
			);

			CREATE INDEX idx_pending_deliveries_owner ON pending_deliveries(owner, seq);
		`,
	}
}
