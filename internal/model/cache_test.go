package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCachedRecordIsExpired(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{"absent expiry is expired", nil, true},
		{"past expiry is expired", &past, true},
		{"expiry equal to now is expired", &now, true},
		{"future expiry is fresh", &future, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := CachedRecord{
				CanonicalID: "ent-1",
				ProviderID:  "edgar",
				Status:      RecordOK,
				FetchedAt:   now.Add(-2 * time.Hour),
				ExpiresAt:   tt.expiresAt,
			}
			assert.Equal(t, tt.want, rec.IsExpired(now))
		})
	}
}

func TestCacheModeValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode CacheMode
		want string
	}{
		{CacheUse, "use"},
		{CacheRefresh, "refresh"},
		{CacheBypass, "bypass"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.mode))
		})
	}
}
