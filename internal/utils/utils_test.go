package utils_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruworg/stash/internal/utils"
)

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{int64(2.5 * 1024 * 1024 * 1024), "2.5 GB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, utils.FormatFileSize(tt.size))
	}
}

func TestParseExpirationTime(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		check   func(t *testing.T, got time.Time)
	}{
		{
			name:  "hours from now",
			input: "24",
			check: func(t *testing.T, got time.Time) {
				assert.WithinDuration(t, time.Now().Add(24*time.Hour), got, 5*time.Second)
			},
		},
		{
			name:  "unix milliseconds",
			input: "1742164682000",
			check: func(t *testing.T, got time.Time) {
				assert.Equal(t, time.Date(2025, 3, 16, 22, 38, 2, 0, time.UTC), got.UTC())
			},
		},
		{
			name:  "RFC3339",
			input: "2023-06-15T14:30:45Z",
			check: func(t *testing.T, got time.Time) {
				assert.True(t, got.Equal(time.Date(2023, 6, 15, 14, 30, 45, 0, time.UTC)))
			},
		},
		{
			name:  "bare date",
			input: "2023-06-15",
			check: func(t *testing.T, got time.Time) {
				assert.True(t, got.Equal(time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)))
			},
		},
		{
			name:  "SQL datetime",
			input: "2023-06-15 14:30:45",
			check: func(t *testing.T, got time.Time) {
				assert.True(t, got.Equal(time.Date(2023, 6, 15, 14, 30, 45, 0, time.UTC)))
			},
		},
		{
			name:    "garbage",
			input:   "not-a-valid-time",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := utils.ParseExpirationTime(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, got)
		})
	}
}
