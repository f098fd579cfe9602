package aggregate

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/netip"
	"os"

	"github.com/golang/snappy"
	jsoniter "github.com/json-iterator/go"
	"github.com/natefinch/atomic"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// snappyMagic is the stream identifier chunk that opens every snappy
// framed stream.
var snappyMagic = []byte("\xff\x06\x00\x00sNaPpY")

// Aggregate is the full set of entries of one snapshot.
type Aggregate struct {
	IPv4 []Entry
	IPv6 []Entry
}

// Len returns the number of entries in both families.
func (a *Aggregate) Len() int {
	return len(a.IPv4) + len(a.IPv6)
}

// LoadError reports a snapshot that could not be deserialized.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load aggregate '%s': %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

type fileEntry struct {
	Range string `json:"range"`
	Kind  string `json:"kind,omitempty"`
}

type fileFormat struct {
	IPv4 []fileEntry `json:"ipv4"`
	IPv6 []fileEntry `json:"ipv6"`
}

// Load reads the snapshot at path.
func Load(path string) (*Aggregate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer f.Close()

	a, err := Decode(f)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return a, nil
}

// LoadOrEmpty is Load, except that a missing file is an empty aggregate.
func LoadOrEmpty(path string) (*Aggregate, error) {
	a, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Aggregate{}, nil
	}
	return a, err
}

// Decode reads a plain or snappy framed snapshot from r. Empty input is
// an empty aggregate.
func Decode(r io.Reader) (*Aggregate, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(snappyMagic))
	if err != nil && err != io.EOF {
		return nil, err
	}
	if len(head) == 0 {
		return &Aggregate{}, nil
	}

	var src io.Reader = br
	if bytes.Equal(head, snappyMagic) {
		src = snappy.NewReader(br)
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &Aggregate{}, nil
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	a := &Aggregate{}
	if a.IPv4, err = convertEntries(ff.IPv4, IPv4); err != nil {
		return nil, err
	}
	if a.IPv6, err = convertEntries(ff.IPv6, IPv6); err != nil {
		return nil, err
	}
	return a, nil
}

func convertEntries(in []fileEntry, family Family) ([]Entry, error) {
	out := make([]Entry, 0, len(in))
	for _, fe := range in {
		p, err := netip.ParsePrefix(fe.Range)
		if err != nil {
			return nil, fmt.Errorf("%s range: %w", family, err)
		}
		if FamilyOf(p) != family {
			return nil, fmt.Errorf("%s range %s has the wrong address family", family, p)
		}
		out = append(out, Entry{Range: p.Masked(), Kind: fe.Kind})
	}
	return out, nil
}

// Encode writes a in the snapshot format, snappy framed if compress is set.
func Encode(w io.Writer, a *Aggregate, compress bool) error {
	ff := fileFormat{
		IPv4: make([]fileEntry, 0, len(a.IPv4)),
		IPv6: make([]fileEntry, 0, len(a.IPv6)),
	}
	for _, e := range a.IPv4 {
		ff.IPv4 = append(ff.IPv4, fileEntry{Range: e.Range.String(), Kind: e.Kind})
	}
	for _, e := range a.IPv6 {
		ff.IPv6 = append(ff.IPv6, fileEntry{Range: e.Range.String(), Kind: e.Kind})
	}

	data, err := json.Marshal(&ff)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if !compress {
		_, err = w.Write(data)
		return err
	}
	sw := snappy.NewBufferedWriter(w)
	if _, err := sw.Write(data); err != nil {
		return err
	}
	return sw.Close()
}

// Write atomically stores a at path.
func Write(path string, a *Aggregate, compress bool) error {
	var buf bytes.Buffer
	if err := Encode(&buf, a, compress); err != nil {
		return err
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("write aggregate '%s': %w", path, err)
	}
	return nil
}
