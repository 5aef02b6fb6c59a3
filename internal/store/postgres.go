package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists dialogs and settings in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS dialog_records (
			id TEXT PRIMARY KEY,
			user_key TEXT NOT NULL,
			prompt TEXT NOT NULL,
			completion TEXT NOT NULL,
			content_type TEXT NOT NULL,
			language TEXT NOT NULL DEFAULT '',
			day TEXT NOT NULL,
			week TEXT NOT NULL,
			month TEXT NOT NULL,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_dialog_records_user_type_created ON dialog_records (user_key, content_type, created_at);`,
		`CREATE TABLE IF NOT EXISTS user_settings (
			user_key TEXT PRIMARY KEY,
			recognition_locale TEXT,
			synthesis_locale TEXT,
			synthesis_voice TEXT,
			system_role TEXT,
			speed TEXT,
			model TEXT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS prompts (
			id TEXT PRIMARY KEY,
			act TEXT NOT NULL DEFAULT '',
			prompt TEXT NOT NULL,
			localized_prompt TEXT NOT NULL DEFAULT ''
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) InsertDialog(ctx context.Context, record DialogRecord) error {
	record = prepare(record)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dialog_records (id, user_key, prompt, completion, content_type, language, day, week, month,
			prompt_tokens, completion_tokens, total_tokens, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		record.ID,
		record.UserKey,
		record.Prompt,
		record.Completion,
		record.ContentType,
		record.Language,
		record.Date,
		record.Week,
		record.Month,
		record.Usage.PromptTokens,
		record.Usage.CompletionTokens,
		record.Usage.TotalTokens,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dialog: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountDialogsSince(ctx context.Context, userKey, contentType string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM dialog_records
		 WHERE user_key=$1 AND ($2 = '' OR content_type=$2) AND created_at >= $3`,
		userKey,
		contentType,
		since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count dialogs: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) LanguageProfile(ctx context.Context, userKey string) (LanguageProfile, error) {
	var recognition, synthesis, voice *string
	err := s.pool.QueryRow(ctx,
		`SELECT recognition_locale, synthesis_locale, synthesis_voice FROM user_settings WHERE user_key=$1`,
		userKey,
	).Scan(&recognition, &synthesis, &voice)
	if errors.Is(err, pgx.ErrNoRows) {
		return LanguageProfile{}, ErrNotFound
	}
	if err != nil {
		return LanguageProfile{}, fmt.Errorf("query language profile: %w", err)
	}
	if recognition == nil || synthesis == nil || voice == nil {
		return LanguageProfile{}, ErrNotFound
	}
	return LanguageProfile{
		RecognitionLocale: *recognition,
		SynthesisLocale:   *synthesis,
		SynthesisVoice:    *voice,
	}, nil
}

func (s *PostgresStore) UpsertLanguageProfile(ctx context.Context, userKey string, profile LanguageProfile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_settings (user_key, recognition_locale, synthesis_locale, synthesis_voice, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (user_key) DO UPDATE SET
			recognition_locale = EXCLUDED.recognition_locale,
			synthesis_locale = EXCLUDED.synthesis_locale,
			synthesis_voice = EXCLUDED.synthesis_voice,
			updated_at = now()`,
		userKey,
		profile.RecognitionLocale,
		profile.SynthesisLocale,
		profile.SynthesisVoice,
	)
	if err != nil {
		return fmt.Errorf("upsert language profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) SystemRole(ctx context.Context, userKey string) (string, error) {
	return s.settingColumn(ctx, "system_role", userKey)
}

func (s *PostgresStore) UpsertSystemRole(ctx context.Context, userKey, role string) error {
	return s.upsertColumn(ctx, "system_role", userKey, role)
}

func (s *PostgresStore) Speed(ctx context.Context, userKey string) (string, error) {
	return s.settingColumn(ctx, "speed", userKey)
}

func (s *PostgresStore) UpsertSpeed(ctx context.Context, userKey, rate string) error {
	return s.upsertColumn(ctx, "speed", userKey, rate)
}

func (s *PostgresStore) ModelOverride(ctx context.Context, userKey string) (string, error) {
	return s.settingColumn(ctx, "model", userKey)
}

func (s *PostgresStore) UpsertModelOverride(ctx context.Context, userKey, model string) error {
	return s.upsertColumn(ctx, "model", userKey, model)
}

// settingColumn and upsertColumn only ever receive the column names above.
func (s *PostgresStore) settingColumn(ctx context.Context, column, userKey string) (string, error) {
	var v *string
	err := s.pool.QueryRow(ctx,
		`SELECT `+column+` FROM user_settings WHERE user_key=$1`,
		userKey,
	).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query %s: %w", column, err)
	}
	if v == nil {
		return "", ErrNotFound
	}
	return *v, nil
}

func (s *PostgresStore) upsertColumn(ctx context.Context, column, userKey, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_settings (user_key, `+column+`, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (user_key) DO UPDATE SET `+column+` = EXCLUDED.`+column+`, updated_at = now()`,
		userKey,
		value,
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", column, err)
	}
	return nil
}

func (s *PostgresStore) SearchPrompts(ctx context.Context, keywords string, limit int) ([]PromptRecord, error) {
	terms := Keywords(keywords)
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	conds := make([]string, 0, len(terms))
	args := make([]any, 0, len(terms)+1)
	for i, term := range terms {
		conds = append(conds, fmt.Sprintf(`(act || ' ' || prompt) ILIKE $%d ESCAPE '\'`, i+1))
		args = append(args, "%"+escapeLike(term)+"%")
	}
	args = append(args, limit)

	rows, err := s.pool.Query(ctx,
		`SELECT id, act, prompt, localized_prompt FROM prompts WHERE `+strings.Join(conds, " AND ")+
			fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args)),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("search prompts: %w", err)
	}
	defer rows.Close()

	var out []PromptRecord
	for rows.Next() {
		var p PromptRecord
		if err := rows.Scan(&p.ID, &p.Act, &p.Prompt, &p.LocalizedPrompt); err != nil {
			return nil, fmt.Errorf("scan prompt row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prompt rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpsertPrompt(ctx context.Context, prompt PromptRecord) error {
	if prompt.ID == "" {
		prompt.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO prompts (id, act, prompt, localized_prompt) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET act = EXCLUDED.act, prompt = EXCLUDED.prompt,
			localized_prompt = EXCLUDED.localized_prompt`,
		prompt.ID,
		prompt.Act,
		prompt.Prompt,
		prompt.LocalizedPrompt,
	)
	if err != nil {
		return fmt.Errorf("upsert prompt: %w", err)
	}
	return nil
}

func (s *PostgresStore) Mode() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func escapeLike(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(v)
}
