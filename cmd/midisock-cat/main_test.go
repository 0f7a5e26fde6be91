package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opd-ai/midisock/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDump(t *testing.T) {
	assert.Equal(t, "0x90 0x3C 0x7F", dump([]byte{0x90, 0x3C, 0x7F}))
	assert.Equal(t, "", dump(nil))
}

func TestPrintKeyPair(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printKeyPair(&out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "private_key = "))

	private := strings.Trim(strings.TrimPrefix(lines[0], "private_key = "), `"`)
	key, err := crypto.ParseKey(private)
	require.NoError(t, err)

	kp, err := crypto.FromSecretKey(key)
	require.NoError(t, err)
	assert.Contains(t, lines[1], kp.PublicHex())
}

func TestRunSendsLinesUntilEOF(t *testing.T) {
	text := `
[log]
level = "error"

[udp]
listen = "127.0.0.1:0"

[[destinations]]
name = "sink"
address = "127.0.0.1:9"
`
	path := filepath.Join(t.TempDir(), "cat.toml")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))

	var out bytes.Buffer
	err := run(path, time.Second, strings.NewReader("note on\nnote off\n"), &out)
	assert.NoError(t, err)
}

func TestRunRejectsMissingConfig(t *testing.T) {
	err := run(filepath.Join(t.TempDir(), "absent.toml"), time.Second, strings.NewReader(""), &bytes.Buffer{})
	assert.Error(t, err)
}
