package secrets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTokenData(t *testing.T) {
	tt := []struct {
		name         string
		data         map[string]interface{}
		expected     *tokenData
		requireError bool
	}{
		{
			name:         "nil data",
			requireError: true,
		},
		{
			name:     "root token",
			data:     map[string]interface{}{"display_name": "root", "expire_time": nil},
			expected: &tokenData{isRoot: true},
		},
		{
			name:     "no expiration",
			data:     map[string]interface{}{"display_name": "token-app"},
			expected: &tokenData{isRoot: true},
		},
		{
			name: "renewable",
			data: map[string]interface{}{
				"display_name": "token-app",
				"expire_time":  "2024-05-01T10:00:00Z",
				"renewable":    true,
			},
			expected: &tokenData{
				isRenewable:    true,
				expirationTime: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
			},
		},
		{
			name: "bad expiration",
			data: map[string]interface{}{
				"display_name": "token-app",
				"expire_time":  "tomorrow",
				"renewable":    true,
			},
			requireError: true,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			res, err := getTokenData(tc.data)
			if tc.requireError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected.isRoot, res.isRoot)
			assert.Equal(t, tc.expected.isRenewable, res.isRenewable)
			assert.True(t, tc.expected.expirationTime.Equal(res.expirationTime))
		})
	}
}
