package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_KeepsFetchErrorReachable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		kind     Kind
		message  string
	}{
		{
			name:     "integrity around hash sentinel",
			err:      Wrap(Integrity(ReasonDigest, false, ErrFileHashMismatch), "fetch data/a.txt"),
			sentinel: ErrFileHashMismatch,
			kind:     KindIntegrity,
			message:  "fetch data/a.txt: IntegrityError(digest): file hash mismatch",
		},
		{
			name:     "permanent around formatted redirect sentinel",
			err:      Wrapf(Permanent(302, Wrapf(ErrTooManyRedirects, "stopped after %d", 3)), "attempt %d", 2),
			sentinel: ErrTooManyRedirects,
			kind:     KindPermanent,
			message:  "attempt 2: PermanentError [status 302]: stopped after 3: too many redirects",
		},
		{
			name:     "bare sentinel is permanent",
			err:      Wrap(ErrTransferTruncated, "ftp retrieve"),
			sentinel: ErrTransferTruncated,
			kind:     KindPermanent,
			message:  "ftp retrieve: transfer truncated",
		},
		{
			name:     "network kind survives double wrap",
			err:      Wrap(Wrap(Network(ErrChunkTimeout), "stream"), "fetch"),
			sentinel: ErrChunkTimeout,
			kind:     KindNetwork,
			message:  "fetch: stream: NetworkError: no data received within chunk timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.message, tt.err.Error())
		})
	}
}

func TestWrap_Nil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "fetch"))
	assert.NoError(t, Wrapf(nil, "attempt %d", 1))
	assert.Equal(t, KindNone, KindOf(Wrap(nil, "fetch")))
}

func TestFetchError_UnwrapsToClassifiedCause(t *testing.T) {
	cause := Wrapf(ErrFileSizeMismatch, "%s: expected %d bytes, got %d", "b.txt", 10, 5)
	err := Wrap(Integrity(ReasonSize, true, cause), "verify")

	fe, ok := AsFetchError(err)
	require.True(t, ok)
	assert.Equal(t, ReasonSize, fe.Reason)
	assert.True(t, fe.LengthMatched)
	assert.ErrorIs(t, fe, ErrFileSizeMismatch)
	assert.Same(t, fe, Classify(err))
	assert.False(t, errors.Is(err, ErrFileHashMismatch))
}

func TestDetailHelpers(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		message  string
	}{
		{
			name:     "log level",
			err:      ErrInvalidLogLevelWithDetails("loud"),
			sentinel: ErrInvalidLogLevel,
			message:  "invalid log level: 'loud', must be one of: debug, info, warn, error",
		},
		{
			name:     "output format",
			err:      ErrInvalidOutputFormatWithDetails("xml"),
			sentinel: ErrInvalidOutputFormat,
			message:  "invalid output format: 'xml', must be one of: text, json",
		},
		{
			name:     "manifest entry",
			err:      ErrManifestEntryWithIndex(3, "missing url"),
			sentinel: ErrManifestEntry,
			message:  "entry 3: missing url: invalid manifest entry",
		},
		{
			name:     "duplicate output path",
			err:      ErrDuplicateOutputPathWithName("data/a.txt"),
			sentinel: ErrDuplicateOutputPath,
			message:  "duplicate output path in manifest: data/a.txt",
		},
		{
			name:     "unknown algorithm",
			err:      ErrUnknownAlgorithmWithName("crc32"),
			sentinel: ErrUnknownAlgorithm,
			message:  `unknown digest algorithm: "crc32"`,
		},
		{
			name:     "scheme registered",
			err:      ErrSchemeRegisteredWithName("s3"),
			sentinel: ErrSchemeExists,
			message:  "scheme already registered: s3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Equal(t, tt.message, tt.err.Error())
			assert.Equal(t, KindPermanent, KindOf(tt.err), "untyped sentinels classify as permanent")
		})
	}
}
