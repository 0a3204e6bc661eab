package infra_pg_init

import (
	"testing"

	"github.com/humanbelnik/towerduels/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.Postgres{
		Host:     "db",
		Port:     "5432",
		User:     "admin",
		Password: "secret",
		DBName:   "towerduels",
		SSLMode:  "disable",
	})

	assert.Equal(t, "host=db port=5432 user=admin password=secret dbname=towerduels sslmode=disable", dsn)
}
