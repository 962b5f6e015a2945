package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	signer := NewDownloadSigner("secret", time.Hour)

	token, expiresAt, err := signer.Sign("exp-1", "audit-exp-1.csv")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	exportID, relPath, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "exp-1", exportID)
	assert.Equal(t, "audit-exp-1.csv", relPath)
}

func TestVerifyTamperedToken(t *testing.T) {
	signer := NewDownloadSigner("secret", time.Hour)

	token, _, err := signer.Sign("exp-1", "audit-exp-1.csv")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[2] = parts[2] + "x"
	_, _, err = signer.Verify(strings.Join(parts, "."))
	assert.Error(t, err)
}

func TestVerifyWrongSecret(t *testing.T) {
	signer := NewDownloadSigner("secret", time.Hour)
	other := NewDownloadSigner("different", time.Hour)

	token, _, err := signer.Sign("exp-1", "file.csv")
	require.NoError(t, err)

	_, _, err = other.Verify(token)
	assert.Error(t, err)
}

func TestVerifyExpiredToken(t *testing.T) {
	base := time.Now()
	signer := NewDownloadSigner("secret", time.Minute).WithClock(func() time.Time { return base })

	token, _, err := signer.Sign("exp-1", "file.csv")
	require.NoError(t, err)

	signer.WithClock(func() time.Time { return base.Add(2 * time.Minute) })
	_, _, err = signer.Verify(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestVerifyMalformedToken(t *testing.T) {
	signer := NewDownloadSigner("secret", time.Hour)

	_, _, err := signer.Verify("not-a-token")
	assert.Error(t, err)
}

func TestSignRequiresSecret(t *testing.T) {
	signer := NewDownloadSigner("", time.Hour)

	_, _, err := signer.Sign("exp-1", "file.csv")
	assert.Error(t, err)
}
