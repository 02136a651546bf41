package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	goversion "github.com/hashicorp/go-version"
	"github.com/sirupsen/logrus"
)

const (
	versionCheckTimeout = 10 * time.Second
	// minProtocolVersion is the oldest SparkSDR API revision whose frames we decode
	minProtocolVersion = "1.0"
)

var (
	latestVersion   string
	latestVersionMu sync.RWMutex
	versionRegex    = regexp.MustCompile(`const\s+AppVersion\s*=\s*"([^"]+)"`)
	protocolRange   = goversion.MustConstraints(goversion.NewConstraint(">= " + minProtocolVersion))
)

// CheckProtocolVersion reports whether the server speaks a protocol revision we support
func CheckProtocolVersion(v Version) error {
	if v.ProtocolVersion == "" {
		return fmt.Errorf("server did not report a protocol version")
	}
	parsed, err := goversion.NewVersion(v.ProtocolVersion)
	if err != nil {
		return fmt.Errorf("invalid protocol version %q: %w", v.ProtocolVersion, err)
	}
	if !protocolRange.Check(parsed) {
		return fmt.Errorf("protocol version %s is older than %s", parsed, minProtocolVersion)
	}
	return nil
}

// GetLatestVersion returns the last release seen by the version checker, or ""
func GetLatestVersion() string {
	latestVersionMu.RLock()
	defer latestVersionMu.RUnlock()
	return latestVersion
}

func setLatestVersion(v string) {
	latestVersionMu.Lock()
	defer latestVersionMu.Unlock()
	latestVersion = v
}

// fetchLatestVersion reads a Go source file from url and extracts its AppVersion constant
func fetchLatestVersion(ctx context.Context, client *http.Client, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "sparkclient/"+AppVersion)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch version file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if m := versionRegex.FindStringSubmatch(strings.TrimSpace(scanner.Text())); len(m) == 2 {
			return m[1], nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("error reading response: %w", err)
	}
	return "", fmt.Errorf("version constant not found in file")
}

// updateAvailable compares release strings semantically
func updateAvailable(current, latest string) (bool, error) {
	cur, err := goversion.NewVersion(current)
	if err != nil {
		return false, err
	}
	lat, err := goversion.NewVersion(latest)
	if err != nil {
		return false, err
	}
	return lat.GreaterThan(cur), nil
}

func checkVersion(ctx context.Context, client *http.Client, url string) {
	log := NewLogger("version")
	latest, err := fetchLatestVersion(ctx, client, url)
	if err != nil {
		log.WithError(err).WithField("current", AppVersion).Warn("Version check failed")
		return
	}
	setLatestVersion(latest)

	newer, err := updateAvailable(AppVersion, latest)
	switch {
	case err != nil:
		log.WithError(err).WithField("latest", latest).Warn("Could not compare versions")
	case newer:
		log.WithFields(logrus.Fields{"current": AppVersion, "latest": latest}).Info("Update available")
	default:
		log.WithField("current", AppVersion).Debug("Up to date")
	}
}

// RunVersionChecker checks url at startup and then every interval until ctx is done
func RunVersionChecker(ctx context.Context, cfg VersionCheckConfig) {
	if !cfg.Enabled || cfg.URL == "" {
		return
	}
	interval := time.Duration(cfg.IntervalMinutes) * time.Minute
	if interval < time.Hour {
		interval = time.Hour
	}
	client := &http.Client{Timeout: versionCheckTimeout}

	checkVersion(ctx, client, cfg.URL)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkVersion(ctx, client, cfg.URL)
		}
	}
}
