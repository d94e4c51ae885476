package helper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDatabase(t *testing.T) {
	t.Run("Nil configuration is an error", func(t *testing.T) {
		db, err := NewDatabase("test", nil, nil)
		assert.Nil(t, db)
		assert.Error(t, err)
	})

	t.Run("Unreachable database returns an error instead of panicking", func(t *testing.T) {
		attempts, wait := ConnectAttempts, ConnectWait
		ConnectAttempts, ConnectWait = 2, 0
		defer func() { ConnectAttempts, ConnectWait = attempts, wait }()

		config := &DatabaseConfiguration{
			Host:     "127.0.0.1",
			Port:     "1",
			Database: "retriever",
			Username: "retriever",
			SSLMode:  "disable",
			Schema:   "public",
		}

		assert.NotPanics(t, func() {
			db, err := NewDatabase("unreachable", config, nil)
			assert.Nil(t, db)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "connect to database unreachable")
		})
	})
}
