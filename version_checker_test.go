package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckProtocolVersion(t *testing.T) {
	assert.NoError(t, CheckProtocolVersion(Version{ProtocolVersion: "1.0"}))
	assert.NoError(t, CheckProtocolVersion(Version{ProtocolVersion: "2.3"}))
	assert.Error(t, CheckProtocolVersion(Version{ProtocolVersion: "0.9"}))
	assert.Error(t, CheckProtocolVersion(Version{ProtocolVersion: "latest"}))
	assert.Error(t, CheckProtocolVersion(Version{}))
}

func TestUpdateAvailable(t *testing.T) {
	newer, err := updateAvailable("0.4.0", "0.10.0")
	require.NoError(t, err)
	assert.True(t, newer, "versions compare numerically, not lexically")

	newer, err = updateAvailable("0.4.0", "0.4.0")
	require.NoError(t, err)
	assert.False(t, newer)

	_, err = updateAvailable("0.4.0", "not-a-version")
	assert.Error(t, err)
}

func TestFetchLatestVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/version.go":
			w.Write([]byte("package main\n\nconst AppVersion = \"0.5.1\"\n"))
		case "/empty.go":
			w.Write([]byte("package main\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	v, err := fetchLatestVersion(context.Background(), srv.Client(), srv.URL+"/version.go")
	require.NoError(t, err)
	assert.Equal(t, "0.5.1", v)

	_, err = fetchLatestVersion(context.Background(), srv.Client(), srv.URL+"/empty.go")
	assert.Error(t, err)

	_, err = fetchLatestVersion(context.Background(), srv.Client(), srv.URL+"/missing.go")
	assert.Error(t, err)
}

func TestCheckVersion_RecordsLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("const AppVersion = \"9.9.9\"\n"))
	}))
	defer srv.Close()

	checkVersion(context.Background(), srv.Client(), srv.URL)
	assert.Equal(t, "9.9.9", GetLatestVersion())
}

func TestRunVersionChecker_Disabled(t *testing.T) {
	// Returns immediately without a URL
	RunVersionChecker(context.Background(), VersionCheckConfig{Enabled: true})
	RunVersionChecker(context.Background(), VersionCheckConfig{Enabled: false, URL: "http://example.invalid"})
}

func TestVersionRegex_MatchesReleaseConstant(t *testing.T) {
	src, err := os.ReadFile("version.go")
	require.NoError(t, err)

	m := versionRegex.FindSubmatch(src)
	require.Len(t, m, 2, "the release constant in version.go is what the checker scrapes")
	assert.Equal(t, AppVersion, string(m[1]))
}
