package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimpleProtocolURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@db:5432/assist", "postgres://u:p@db:5432/assist?default_query_exec_mode=simple_protocol"},
		{"postgresql://db/assist?sslmode=disable", "postgresql://db/assist?default_query_exec_mode=simple_protocol&sslmode=disable"},
		{"postgres://db/assist?default_query_exec_mode=exec", "postgres://db/assist?default_query_exec_mode=exec"},
		{"host=db dbname=assist", "host=db dbname=assist"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, simpleProtocolURL(tt.in), tt.in)
	}
}

func TestDefaultConfigs_EnvOverrides(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "40")
	t.Setenv("REDIS_POOL_SIZE", "bogus")

	assert.Equal(t, int32(40), DefaultPostgresConfig().MaxConns)
	assert.Equal(t, 50, DefaultRedisConfig().PoolSize)
}
