package internal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYTDLPInstallFailureIsRetried(t *testing.T) {
	yt := NewYTDLP(&Config{}, nil)
	calls := 0
	yt.install = func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("github.com: connection reset")
		}
		return nil
	}

	_, err := yt.VideoMetadata(context.Background(), "abcdefghijk")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Contains(t, err.Error(), "installing yt-dlp")

	require.NoError(t, yt.ensureInstalled(context.Background()))
	require.NoError(t, yt.ensureInstalled(context.Background()))
	assert.Equal(t, 2, calls, "a successful install is remembered")
}

func TestClassifyYTDLPError(t *testing.T) {
	runErr := errors.New("exit status 1")

	err := classifyYTDLPError("ERROR: [youtube] abc: Private video. Sign in", runErr)
	assert.ErrorIs(t, err, ErrNotFound)

	err = classifyYTDLPError("ERROR: unable to download webpage: timed out", runErr)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, runErr)
}

func TestUploadDay(t *testing.T) {
	assert.Equal(t, "2024-03-01", uploadDay("20240301"))
	assert.Equal(t, "", uploadDay(""))
}
