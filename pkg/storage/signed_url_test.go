package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rinkdesk/ice-booking-api/pkg/clock"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	clk := clock.NewMockClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	signer := NewSignedURLSigner("secret", time.Hour, clk)
	token, expiresAt, err := signer.Generate("inv-1", "2025-02/owner-1.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, clk.Now().Add(time.Hour), expiresAt)

	ownerID, path, err := signer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "inv-1", ownerID)
	require.Equal(t, "2025-02/owner-1.pdf", path)
}

func TestSignedURLSignerExpired(t *testing.T) {
	clk := clock.NewMockClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	signer := NewSignedURLSigner("secret", time.Minute, clk)
	token, _, err := signer.Generate("inv-1", "2025-02/owner-1.pdf")
	require.NoError(t, err)

	clk.Add(2 * time.Minute)
	_, _, err = signer.Parse(token)
	require.EqualError(t, err, "token expired")
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour, nil)
	token, _, err := signer.Generate("inv-1", "a.pdf")
	require.NoError(t, err)

	other := NewSignedURLSigner("other", time.Hour, nil)
	_, _, err = other.Parse(token)
	require.Error(t, err)

	_, _, err = signer.Parse("not-a-token")
	require.Error(t, err)
}

func TestLocalStorageRejectsEscapingPaths(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = store.Save("../escape.pdf", []byte("x"))
	require.Error(t, err)

	name, err := store.Save("2025-02/doc.pdf", []byte("pdf"))
	require.NoError(t, err)
	f, err := store.Open(name)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, store.Delete(name))
}
