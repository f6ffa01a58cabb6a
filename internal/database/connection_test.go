package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	gormLogger "gorm.io/gorm/logger"

	"github.com/customeros/domails/internal/config"
)

func TestValidateConfig(t *testing.T) {
	valid := config.DatabaseConfig{Host: "localhost", Port: "5432", User: "u", Password: "p", DBName: "domails", SSLMode: "disable"}
	assert.NoError(t, validateConfig(&valid))
	assert.Error(t, validateConfig(nil))

	missingHost := valid
	missingHost.Host = ""
	assert.EqualError(t, validateConfig(&missingHost), "database host config is empty")
}

func TestNewConnection_InvalidPort(t *testing.T) {
	_, err := NewConnection(&config.DatabaseConfig{Host: "localhost", Port: "abc", User: "u", Password: "p", DBName: "d", SSLMode: "disable"})
	assert.ErrorContains(t, err, "invalid port number")
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, gormLogger.Warn, logLevel("WARN"))
	assert.Equal(t, gormLogger.Info, logLevel("info"))
	assert.Equal(t, gormLogger.Silent, logLevel("silent"))
	assert.Equal(t, gormLogger.Warn, logLevel("bogus"))
}
