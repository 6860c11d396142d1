// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package testhelper provides helpers shared by the package tests.
package testhelper

import (
	"net/http"
	"os"
	"testing"
)

const (
	// TestOnlineAPIURL is a public endpoint used by tests that need a real network round trip.
	TestOnlineAPIURL = "https://api.aladhan.com/v1/status"

	integrationEnv = "PERFORM_INTEGRATION_TESTS"
)

// MockRoundTripper is a http.RoundTripper that hands every request to Fn.
type MockRoundTripper struct {
	Fn func(*http.Request) (*http.Response, error)
}

// RoundTrip implements the http.RoundTripper interface.
func (m MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.Fn(req)
}

// PerformIntegrationTests skips the calling test unless integration tests are enabled via the
// environment.
func PerformIntegrationTests(t *testing.T) {
	t.Helper()
	if val := os.Getenv(integrationEnv); val == "" {
		t.Skipf("skipping integration test, set %s to enable", integrationEnv)
	}
}
