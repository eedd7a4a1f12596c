package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var emulatorEnv = map[string]string{
	"FIREBASE_PROJECT_ID":         "demo-project",
	"FIREBASE_AUTH_EMULATOR_HOST": "localhost:9099",
}

func runCmd(t *testing.T, environ map[string]string, args ...string) (int, string, string) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, environ, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func decodeSegment(t *testing.T, seg string) map[string]any {
	t.Helper()

	b, err := base64.RawURLEncoding.DecodeString(seg)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func TestMint(t *testing.T) {
	code, stdout, stderr := runCmd(t, emulatorEnv, "mint", "-uid", "user1", "-claims", `{"admin": true}`, "-tenant", "tenant-1")
	require.Equal(t, exitOK, code, stderr)

	segments := strings.Split(strings.TrimSpace(stdout), ".")
	require.Len(t, segments, 3)
	require.Equal(t, "none", decodeSegment(t, segments[0])["alg"])
	payload := decodeSegment(t, segments[1])
	require.Equal(t, "user1", payload["uid"])
	require.Equal(t, "tenant-1", payload["tenant_id"])
	require.Equal(t, map[string]any{"admin": true}, payload["claims"])
	require.Empty(t, segments[2])
}

func TestMintErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string

		code   int
		stderr string
	}{
		{
			name:   "no uid",
			args:   []string{"mint"},
			code:   exitUsage,
			stderr: "-uid",
		},
		{
			name: "unknown flag",
			args: []string{"mint", "-uid", "user1", "-bogus"},
			code: exitUsage,
		},
		{
			name:   "bad claims",
			args:   []string{"mint", "-uid", "user1", "-claims", "{"},
			code:   exitError,
			stderr: "parsing claims",
		},
		{
			name:   "reserved claim",
			args:   []string{"mint", "-uid", "user1", "-claims", `{"sub": "admin"}`},
			code:   exitError,
			stderr: "INVALID_ARGUMENT",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, stdout, stderr := runCmd(t, emulatorEnv, tc.args...)
			require.Equal(t, tc.code, code)
			require.Empty(t, stdout)
			require.Contains(t, stderr, tc.stderr)
		})
	}
}

func emulatorIDToken(t *testing.T, iss string) string {
	t.Helper()

	seg := func(v any) string {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return base64.RawURLEncoding.EncodeToString(b)
	}
	now := time.Now()
	return seg(map[string]any{"alg": "none", "typ": "JWT"}) + "." + seg(map[string]any{
		"iss":   iss,
		"aud":   "demo-project",
		"sub":   "user1",
		"iat":   now.Add(-time.Minute).Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"admin": true,
	}) + "."
}

func TestVerify(t *testing.T) {
	idToken := emulatorIDToken(t, "https://securetoken.google.com/demo-project")
	cookie := emulatorIDToken(t, "https://session.firebase.google.com/demo-project")

	tests := []struct {
		name string
		args []string

		code   int
		stderr string
	}{
		{
			name: "id token",
			args: []string{"verify", idToken},
			code: exitOK,
		},
		{
			name: "session cookie",
			args: []string{"verify", "-session", cookie},
			code: exitOK,
		},
		{
			name:   "session cookie as id token",
			args:   []string{"verify", cookie},
			code:   exitError,
			stderr: "INVALID_ISSUER",
		},
		{
			name:   "malformed",
			args:   []string{"verify", "not-a-token"},
			code:   exitError,
			stderr: "MALFORMED_TOKEN",
		},
		{
			name: "no token",
			args: []string{"verify"},
			code: exitUsage,
		},
		{
			name: "two tokens",
			args: []string{"verify", idToken, idToken},
			code: exitUsage,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, stdout, stderr := runCmd(t, emulatorEnv, tc.args...)
			require.Equal(t, tc.code, code, stderr)
			require.Contains(t, stderr, tc.stderr)
			if tc.code != exitOK {
				return
			}

			var claims map[string]any
			require.NoError(t, json.Unmarshal([]byte(stdout), &claims))
			require.Equal(t, "user1", claims["sub"])
			require.Equal(t, true, claims["admin"])
		})
	}
}

func TestVerifyMintedCustomToken(t *testing.T) {
	code, token, _ := runCmd(t, emulatorEnv, "mint", "-uid", "user1")
	require.Equal(t, exitOK, code)

	code, _, stderr := runCmd(t, emulatorEnv, "verify", strings.TrimSpace(token))
	require.Equal(t, exitError, code)
	require.Contains(t, stderr, "CUSTOM_TOKEN_GIVEN_TO_VERIFIER")
	require.Contains(t, stderr, "but was given a custom token")
}

func TestUsage(t *testing.T) {
	code, _, stderr := runCmd(t, emulatorEnv)
	require.Equal(t, exitUsage, code)
	require.Contains(t, stderr, "usage:")

	code, _, _ = runCmd(t, emulatorEnv, "revoke")
	require.Equal(t, exitUsage, code)
}

func TestParseConfig(t *testing.T) {
	conf, err := parseConfig(map[string]string{
		"FIREBASE_PROJECT_ID":         "demo-project",
		"FIREBASE_SERVICE_ACCOUNT_ID": "signer@demo-project.iam.gserviceaccount.com",
		"FIREBASE_TENANT_ID":          "tenant-1",
		"LOG_LEVEL":                   "DEBUG",
	})
	require.NoError(t, err)
	require.Equal(t, config{
		ProjectID:        "demo-project",
		ServiceAccountID: "signer@demo-project.iam.gserviceaccount.com",
		TenantID:         "tenant-1",
		LogLevel:         slog.LevelDebug,
	}, conf)

	conf, err = parseConfig(map[string]string{})
	require.NoError(t, err)
	require.Equal(t, slog.LevelInfo, conf.LogLevel)

	_, err = parseConfig(map[string]string{"LOG_LEVEL": "LOUD"})
	require.Error(t, err)
}

func TestClientConfigCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type": "service_account"}`), 0o600))

	cc, err := config{ProjectID: "demo-project", CredentialsFile: path}.clientConfig(slog.Default())
	require.NoError(t, err)
	require.JSONEq(t, `{"type": "service_account"}`, string(cc.Credentials))

	// The emulator needs no credentials.
	cc, err = config{CredentialsFile: path, EmulatorHost: "localhost:9099"}.clientConfig(slog.Default())
	require.NoError(t, err)
	require.Empty(t, cc.Credentials)

	_, err = config{CredentialsFile: filepath.Join(t.TempDir(), "missing.json")}.clientConfig(slog.Default())
	require.ErrorContains(t, err, "reading credentials")
}
