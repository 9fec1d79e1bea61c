package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glorpus-work/bagfetch/pkg/digest"
	"github.com/glorpus-work/bagfetch/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const md5Hex = "5d41402abc4b2a76b9719d911017c592"

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "json array",
			input: `[{"url": "https://ex.example/a", "filename": "data/a", "length": 5, "md5": "` + md5Hex + `"}]`,
		},
		{
			name:  "json stream",
			input: `{"url": "https://ex.example/a", "filename": "data/a", "length": 5, "md5": "` + md5Hex + `"}` + "\n",
		},
		{
			name: "yaml",
			input: `
- url: https://ex.example/a
  filename: data/a
  length: 5
  md5: ` + md5Hex + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := Parse(strings.NewReader(tt.input))
			require.NoError(t, err)
			require.Len(t, entries, 1)

			e := entries[0]
			assert.Equal(t, "data/a", e.ID)
			assert.Equal(t, "https://ex.example/a", e.URL)
			assert.Equal(t, int64(5), e.ExpectedSize())
			require.NotNil(t, e.Digest)
			assert.Equal(t, digest.MD5, e.Digest.Algorithm)
			assert.Equal(t, md5Hex, e.Digest.Hex)
		})
	}
}

func TestParse_DigestSelection(t *testing.T) {
	input := `
- url: https://ex.example/a
  md5: ` + md5Hex + `
  sha256: 2CF24DBA5FB0A30E26E83B2AC5B9E29E1B161E5C1FA7425E73043362938B9824
- url: https://ex.example/b
  hash: "sha1:aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"
  sha256: 2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824
- url: https://ex.example/c
`
	entries, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, digest.SHA256, entries[0].Digest.Algorithm)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", entries[0].Digest.Hex)
	assert.Equal(t, digest.SHA1, entries[1].Digest.Algorithm)
	assert.Nil(t, entries[2].Digest)
	assert.Equal(t, int64(-1), entries[2].ExpectedSize())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "garbage", input: "{not json", wantErr: errors.ErrManifestParse},
		{name: "missing url", input: `[{"filename": "a"}]`, wantErr: errors.ErrManifestEntry},
		{name: "negative length", input: `[{"url": "https://ex.example/a", "length": -1}]`, wantErr: errors.ErrManifestEntry},
		{name: "bad hash", input: `[{"url": "https://ex.example/a", "hash": "crc32:00"}]`, wantErr: errors.ErrManifestEntry},
		{name: "non-hex digest", input: `[{"url": "https://ex.example/a", "md5": "zz"}]`, wantErr: errors.ErrManifestEntry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remote-file-manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"url": "https://ex.example/a", "filename": "a"}]`), 0o600))

	entries, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, errors.ErrManifestParse)
}
