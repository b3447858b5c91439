package version

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GitCommit)
	assert.NotEmpty(t, info.BuildDate)
	assert.NotEmpty(t, info.GoVersion)
	assert.NotEmpty(t, info.Platform)
}

func TestGetBuildInfo_ParsesValidDate(t *testing.T) {
	originalBuildDate := BuildDate
	defer func() { BuildDate = originalBuildDate }()

	BuildDate = "2026-01-13T20:00:00Z"
	info := GetBuildInfo()

	expected, err := time.Parse(time.RFC3339, BuildDate)
	require.NoError(t, err)
	assert.True(t, info.BuildTime.Equal(expected))
}

func TestGetBuildInfo_InvalidDateLeavesZeroTime(t *testing.T) {
	originalBuildDate := BuildDate
	defer func() { BuildDate = originalBuildDate }()

	BuildDate = "yesterday"
	assert.True(t, GetBuildInfo().BuildTime.IsZero())
}

func TestBuildInfo_String(t *testing.T) {
	info := BuildInfo{Version: "v1.2.3", GitCommit: "abc123", BuildDate: "2026-01-17T15:00:00Z", GoVersion: "go1.25.0", Platform: "linux/amd64"}
	assert.Equal(t, "coffret v1.2.3 (commit: abc123, built: 2026-01-17T15:00:00Z, go1.25.0 linux/amd64)", info.String())
}
