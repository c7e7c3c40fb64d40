package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDriverName(t *testing.T) {
	for in, want := range map[string]string{"": "postgres", "postgres": "postgres", "pq": "postgres", "pgx": "pgx"} {
		got, err := DriverName(in)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := DriverName("mysql")
	assert.Error(t, err)
}
