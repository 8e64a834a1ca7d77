package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSetArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantTTL time.Duration // 0 means no ttl
		wantErr error
	}{
		{name: "plain", args: []string{"k", "v"}},
		{name: "ex", args: []string{"k", "v", "EX", "10"}, wantTTL: 10 * time.Second},
		{name: "px lower case", args: []string{"k", "v", "px", "250"}, wantTTL: 250 * time.Millisecond},
		{name: "too few", args: []string{"k"}, wantErr: errSyntax},
		{name: "missing number", args: []string{"k", "v", "EX"}, wantErr: errSyntax},
		{name: "unknown option", args: []string{"k", "v", "KEEPTTL"}, wantErr: errSyntax},
		{name: "both units", args: []string{"k", "v", "EX", "1", "PX", "1"}, wantErr: errSyntax},
		{name: "not a number", args: []string{"k", "v", "EX", "1.5"}, wantErr: errNotInteger},
		{name: "zero", args: []string{"k", "v", "EX", "0"}, wantErr: errInvalidExpire},
		{name: "overflow", args: []string{"k", "v", "EX", "9223372036854775807"}, wantErr: errInvalidExpire},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSetArgs(tt.args)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "k", got.Key)
			assert.Equal(t, "v", got.Value)
			if tt.wantTTL == 0 {
				assert.Nil(t, got.TTL)
				return
			}
			require.NotNil(t, got.TTL)
			assert.Equal(t, tt.wantTTL, *got.TTL)
		})
	}
}
