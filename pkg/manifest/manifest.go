// Package manifest reads the lists of remote files a bag references: bdbag
// remote-file manifests (JSON or YAML) and BagIt fetch.txt files.
package manifest

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/bagfetch/pkg/digest"
	"github.com/glorpus-work/bagfetch/pkg/errors"
)

// Entry is one file to fetch.
type Entry struct {
	// ID identifies the entry in results and events. It defaults to the
	// filename.
	ID       string
	URL      string
	Filename string
	Length   *int64
	Digest   *digest.Digest
}

// ExpectedSize returns Length or -1.
func (e Entry) ExpectedSize() int64 {
	if e.Length == nil {
		return -1
	}
	return *e.Length
}

// record is one object of a remote-file manifest.
type record struct {
	ID       string `yaml:"id" json:"id"`
	URL      string `yaml:"url" json:"url"`
	Filename string `yaml:"filename" json:"filename"`
	Length   *int64 `yaml:"length" json:"length"`
	Hash     string `yaml:"hash" json:"hash"`
	MD5      string `yaml:"md5" json:"md5"`
	SHA1     string `yaml:"sha1" json:"sha1"`
	SHA256   string `yaml:"sha256" json:"sha256"`
	SHA512   string `yaml:"sha512" json:"sha512"`
}

// Load reads a remote-file manifest from path.
func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrManifestParse, "%s: %v", path, err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Parse reads a manifest given as a JSON array, a YAML list, or a stream of
// JSON objects (one per line, as bdbag writes them).
func Parse(r io.Reader) ([]Entry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrManifestParse, err.Error())
	}

	var records []record
	if yerr := yaml.Unmarshal(data, &records); yerr != nil {
		records, err = parseJSONStream(data)
		if err != nil {
			return nil, errors.Wrap(errors.ErrManifestParse, yerr.Error())
		}
	}

	entries := make([]Entry, 0, len(records))
	for i, rec := range records {
		e, err := rec.toEntry(i)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func parseJSONStream(data []byte) ([]record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var out []record
	for {
		var rec record
		err := dec.Decode(&rec)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

func (rec record) toEntry(i int) (Entry, error) {
	url := strings.TrimSpace(rec.URL)
	if url == "" {
		return Entry{}, errors.ErrManifestEntryWithIndex(i, "missing url")
	}
	if rec.Length != nil && *rec.Length < 0 {
		return Entry{}, errors.ErrManifestEntryWithIndex(i, "negative length")
	}

	d, err := rec.digest()
	if err != nil {
		return Entry{}, errors.ErrManifestEntryWithIndex(i, err.Error())
	}

	e := Entry{
		ID:       rec.ID,
		URL:      url,
		Filename: strings.TrimSpace(rec.Filename),
		Length:   rec.Length,
		Digest:   d,
	}
	if e.ID == "" {
		e.ID = e.Filename
	}
	return e, nil
}

// digest picks the explicit hash, otherwise the strongest named field.
func (rec record) digest() (*digest.Digest, error) {
	if rec.Hash != "" {
		d, err := digest.Parse(rec.Hash)
		if err != nil {
			return nil, err
		}
		return &d, nil
	}
	named := map[digest.Algorithm]string{
		digest.SHA512: rec.SHA512,
		digest.SHA256: rec.SHA256,
		digest.SHA1:   rec.SHA1,
		digest.MD5:    rec.MD5,
	}
	for _, alg := range digest.Algorithms {
		if v := named[alg]; v != "" {
			d, err := digest.New(string(alg), v)
			if err != nil {
				return nil, err
			}
			return &d, nil
		}
	}
	return nil, nil
}
