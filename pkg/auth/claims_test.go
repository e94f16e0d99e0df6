package auth

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMillisDate_MarshalJSON(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0"},
		{1500, "1.5"},
		{2000, "2"},
		{1_700_000_000_123, "1700000000.123"},
		{1_700_000_000_010, "1700000000.01"},
		{-1500, "-1.5"},
	}
	for _, tt := range tests {
		b, err := json.Marshal(millisDate{ms: tt.ms})
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(b), "ms=%d", tt.ms)
	}
}

func TestMillisDate_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1700000000", 1_700_000_000_000},
		{"1700000000.123", 1_700_000_000_123},
		{"1700000000.1239", 1_700_000_000_123},
		{"2.5", 2500},
		{"-1.5", -1500},
		{"1.7e9", 1_700_000_000_000},
	}
	for _, tt := range tests {
		var d millisDate
		require.NoError(t, json.Unmarshal([]byte(tt.in), &d), tt.in)
		assert.Equal(t, tt.want, d.ms, tt.in)
	}

	for _, bad := range []string{`"soon"`, `1.`, `true`} {
		var d millisDate
		assert.Error(t, json.Unmarshal([]byte(bad), &d), bad)
	}
}

func TestSessionClaims_ExpiryKeepsMilliseconds(t *testing.T) {
	claims := &sessionClaims{Subject: "alice", ExpiresAt: newMillisDate(time.UnixMilli(2500))}

	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.Equal(t, int64(2500), exp.UnixMilli())

	iat, err := claims.GetIssuedAt()
	require.NoError(t, err)
	assert.Nil(t, iat)
}
