package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gurukul-lms/gurukul-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "gurukul",
		Password: "secret",
		Name:     "lms",
		SSLMode:  "require",
	})

	assert.Equal(t, "host=db port=5433 user=gurukul password=secret dbname=lms sslmode=require", dsn)
}
