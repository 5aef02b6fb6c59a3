package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// NewStore picks a backend from the URL scheme: empty means in-memory,
// postgres:// uses pgx and mongodb:// uses the Mongo driver.
func NewStore(ctx context.Context, storeURL, mongoDatabase string) (Store, error) {
	storeURL = strings.TrimSpace(storeURL)
	if storeURL == "" {
		return NewInMemoryStore(), nil
	}
	u, err := url.Parse(storeURL)
	if err != nil {
		return nil, fmt.Errorf("parse STORE_URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, storeURL)
	case "mongodb", "mongodb+srv":
		if strings.TrimSpace(mongoDatabase) == "" {
			mongoDatabase = "chatbot"
		}
		return NewMongoStore(ctx, storeURL, mongoDatabase)
	default:
		return nil, fmt.Errorf("unsupported store scheme %q", u.Scheme)
	}
}
