package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandString(t *testing.T) {
	t.Setenv("AGRILENS_SECRET_TOKEN", "abc123")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"empty", "", "", false},
		{"literal", "literal-value", "literal-value", false},
		{"bare dollar untouched", "pa$$word", "pa$$word", false},
		{"variable", "${AGRILENS_SECRET_TOKEN}", "abc123", false},
		{"prefix and suffix", "Bearer ${AGRILENS_SECRET_TOKEN}!", "Bearer abc123!", false},
		{"fallback used", "${AGRILENS_SECRET_UNSET:-fallback}", "fallback", false},
		{"empty fallback", "${AGRILENS_SECRET_UNSET:-}", "", false},
		{"missing", "${AGRILENS_SECRET_UNSET}", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandString(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "AGRILENS_SECRET_UNSET")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	path := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(path, []byte(" spaced secret \r\n"), 0o600))
	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, " spaced secret ", got)

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o600))
	_, err = ReadFile(empty)
	assert.Error(t, err)

	_, err = ReadFile(dir)
	assert.Error(t, err, "directories are rejected")

	_, err = ReadFile(filepath.Join(dir, "missing"))
	assert.Error(t, err)

	big := filepath.Join(dir, "big")
	require.NoError(t, os.WriteFile(big, make([]byte, maxSecretFileSize+1), 0o600))
	_, err = ReadFile(big)
	assert.Error(t, err)
}

func TestResolvePrefersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(path, []byte("from-file"), 0o600))
	t.Setenv("AGRILENS_SECRET_KEY", "from-env")

	got, err := Resolve(path, "${AGRILENS_SECRET_KEY}")
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	got, err = Resolve("", "${AGRILENS_SECRET_KEY}")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	got, err = Resolve("", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}
