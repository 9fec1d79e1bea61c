package manifest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"github.com/glorpus-work/bagfetch/pkg/archive"
	"github.com/glorpus-work/bagfetch/pkg/digest"
	"github.com/glorpus-work/bagfetch/pkg/errors"
)

// FetchFile is the name of the BagIt fetch file.
const FetchFile = "fetch.txt"

// Bag is the fetch list of a BagIt bag.
type Bag struct {
	// Root is the bag directory inside the opened directory or archive,
	// "." when the bag is at the top level.
	Root    string
	Entries []Entry
}

// LoadBag reads fetch.txt and the payload manifests of the bag at
// bagPath, which may be a directory or an archive.
func LoadBag(ctx context.Context, bagPath string) (*Bag, error) {
	fsys, closeFn, err := archive.NewManager().Open(ctx, bagPath)
	if err != nil {
		return nil, errors.Wrap(errors.ErrManifestParse, err.Error())
	}
	defer func() { _ = closeFn() }()
	return ReadBag(fsys)
}

// ReadBag reads a bag from fsys.
func ReadBag(fsys fs.FS) (*Bag, error) {
	root, err := findBagRoot(fsys)
	if err != nil {
		return nil, err
	}

	f, err := fsys.Open(path.Join(root, FetchFile))
	if err != nil {
		return nil, errors.Wrap(errors.ErrManifestParse, err.Error())
	}
	entries, err := ParseFetchTxt(f)
	_ = f.Close()
	if err != nil {
		return nil, err
	}

	for _, alg := range digest.Algorithms {
		sums, err := readPayloadManifest(fsys, path.Join(root, "manifest-"+string(alg)+".txt"))
		if err != nil {
			return nil, err
		}
		for i := range entries {
			if entries[i].Digest != nil {
				continue
			}
			if hex, ok := sums[entries[i].Filename]; ok {
				d, err := digest.New(string(alg), hex)
				if err != nil {
					return nil, errors.ErrManifestEntryWithIndex(i, err.Error())
				}
				entries[i].Digest = &d
			}
		}
	}
	return &Bag{Root: root, Entries: entries}, nil
}

// findBagRoot accepts a bag at the top level or wrapped in a single
// directory, as bag archives usually are.
func findBagRoot(fsys fs.FS) (string, error) {
	if exists(fsys, FetchFile) {
		return ".", nil
	}
	dirs, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return "", errors.Wrap(errors.ErrManifestParse, err.Error())
	}
	var candidates []string
	for _, d := range dirs {
		if d.IsDir() {
			candidates = append(candidates, d.Name())
		}
	}
	if len(candidates) == 1 && exists(fsys, path.Join(candidates[0], FetchFile)) {
		return candidates[0], nil
	}
	return "", errors.ErrFetchFileNotFound
}

func exists(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}

// ParseFetchTxt reads "URL LENGTH FILENAME" lines. LENGTH may be "-".
// Filenames may contain spaces and use BagIt percent-encoding for CR, LF
// and '%'.
func ParseFetchTxt(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		url, rest, ok := cutField(text)
		if !ok {
			return nil, errors.ErrManifestEntryWithIndex(line, "fetch.txt line needs URL, LENGTH and FILENAME")
		}
		lengthField, filename, ok := cutField(rest)
		if !ok || strings.TrimSpace(filename) == "" {
			return nil, errors.ErrManifestEntryWithIndex(line, "fetch.txt line needs URL, LENGTH and FILENAME")
		}
		e := Entry{URL: url, Filename: decodeBagItPath(strings.TrimSpace(filename))}
		e.ID = e.Filename
		if lengthField != "-" {
			n, err := strconv.ParseInt(lengthField, 10, 64)
			if err != nil || n < 0 {
				return nil, errors.ErrManifestEntryWithIndex(line, fmt.Sprintf("invalid length %q", lengthField))
			}
			e.Length = &n
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrManifestParse, err.Error())
	}
	return entries, nil
}

// ParsePayloadManifest reads "CHECKSUM FILENAME" lines into a map from
// filename to lower-case checksum.
func ParsePayloadManifest(r io.Reader) (map[string]string, error) {
	sums := make(map[string]string)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		sum, name, ok := cutField(text)
		if !ok {
			return nil, errors.Wrapf(errors.ErrManifestParse, "malformed manifest line %q", text)
		}
		name = strings.TrimPrefix(strings.TrimSpace(name), "*")
		sums[decodeBagItPath(name)] = strings.ToLower(sum)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrManifestParse, err.Error())
	}
	return sums, nil
}

func readPayloadManifest(fsys fs.FS, name string) (map[string]string, error) {
	if !exists(fsys, name) {
		return nil, nil
	}
	f, err := fsys.Open(name)
	if err != nil {
		return nil, errors.Wrap(errors.ErrManifestParse, err.Error())
	}
	defer func() { _ = f.Close() }()
	return ParsePayloadManifest(f)
}

// cutField splits off the first whitespace-delimited field.
func cutField(s string) (string, string, bool) {
	s = strings.TrimLeft(s, " \t")
	i := strings.IndexAny(s, " \t")
	if i <= 0 {
		return s, "", false
	}
	return s[:i], strings.TrimLeft(s[i:], " \t"), true
}

var bagItPathDecoder = strings.NewReplacer("%0A", "\n", "%0a", "\n", "%0D", "\r", "%0d", "\r", "%25", "%")

func decodeBagItPath(p string) string {
	return bagItPathDecoder.Replace(p)
}
