package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFetchMaxBytesMirrorsMaxSize(t *testing.T) {
	cases := []struct {
		name    string
		maxSize int
		want    int32
	}{
		{"zero falls back to cap", 0, maxFetchBytes},
		{"negative falls back to cap", -1, maxFetchBytes},
		{"small batch scales down", 10, 10 * assumedAvgRecordBytes},
		{"huge batch caps out", 1_000_000, maxFetchBytes},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, fetchMaxBytes(tc.maxSize))
		})
	}
}
