package keychain

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/glorpus-work/bagfetch/pkg/errors"
	"gopkg.in/yaml.v3"
)

// fileEntry mirrors one record of a keychain file. Unknown fields are ignored.
type fileEntry struct {
	URI        string                 `yaml:"uri"`
	AuthType   string                 `yaml:"auth_type"`
	AuthParams map[string]interface{} `yaml:"auth_params"`
}

// Load reads a keychain file. JSON and YAML are both accepted.
func Load(path string) (*Keychain, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrKeychainRead, "%s: %v", path, err)
	}
	defer func() { _ = f.Close() }()
	return LoadFromReader(f)
}

// LoadOptional reads path when it exists and returns an empty keychain when it
// does not.
func LoadOptional(path string) (*Keychain, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Empty(), nil
	}
	return Load(path)
}

// LoadFromReader parses a keychain document.
func LoadFromReader(r io.Reader) (*Keychain, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrKeychainRead, err.Error())
	}

	var nodes []yaml.Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, errors.Wrap(errors.ErrKeychainParse, err.Error())
	}

	entries := make([]Entry, 0, len(nodes))
	var skipped []Skipped
	for i := range nodes {
		var fe fileEntry
		if err := nodes[i].Decode(&fe); err != nil {
			skipped = append(skipped, Skipped{Index: i, Reason: err.Error()})
			entries = append(entries, Entry{})
			continue
		}
		entries = append(entries, fe.toEntry())
	}

	kc := New(entries)
	kc.skipped = mergeSkipped(skipped, kc.skipped)
	return kc, nil
}

func (fe fileEntry) toEntry() Entry {
	params := make(map[string]string, len(fe.AuthParams))
	for k, v := range fe.AuthParams {
		if v == nil {
			continue
		}
		params[k] = fmt.Sprint(v)
	}
	return Entry{
		URIPattern: fe.URI,
		AuthType:   AuthType(fe.AuthType),
		Params:     params,
	}
}

// mergeSkipped keeps decode failures and drops the generic validation
// message New produces for the placeholder entry at the same index.
func mergeSkipped(decodeFailures, validation []Skipped) []Skipped {
	seen := make(map[int]bool, len(decodeFailures))
	out := append([]Skipped(nil), decodeFailures...)
	for _, s := range decodeFailures {
		seen[s.Index] = true
	}
	for _, s := range validation {
		if !seen[s.Index] {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
