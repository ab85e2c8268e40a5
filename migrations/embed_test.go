package migrations

import (
	"io"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreSequential(t *testing.T) {
	src, err := iofs.New(FS, ".")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	next, err := src.Next(first)
	require.NoError(t, err)
	assert.Equal(t, uint(2), next)

	for _, version := range []uint{1, 2} {
		up, _, err := src.ReadUp(version)
		require.NoError(t, err)
		body, err := io.ReadAll(up)
		up.Close()
		require.NoError(t, err)
		assert.NotEmpty(t, body)

		down, _, err := src.ReadDown(version)
		require.NoError(t, err, "version %d needs a down migration", version)
		down.Close()
	}
}

func TestAppointmentReferenceIsUnique(t *testing.T) {
	body, err := FS.ReadFile("0001_create_appointments.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "CREATE UNIQUE INDEX IF NOT EXISTS appointments_appointment_id_key")
}
