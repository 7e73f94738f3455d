package link

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"

	"asmvm/pkg/lexer"
)

// MaxCodeSize bounds the code length accepted when reading a binary file.
const MaxCodeSize = 1 << 30

// Binary is a linked program. Entry is the offset of the global start label.
// SourceMap maps instruction offsets to their source tokens; it is not part
// of the file format.
type Binary struct {
	Entry     uint64
	Code      []byte
	SourceMap map[uint64]lexer.Token
}

// WriteTo writes the file layout: u64 code length, u64 entry, code bytes,
// all little-endian.
func (b *Binary) WriteTo(w io.Writer) (int64, error) {
	var hdr [16]byte
	binary.LittleEndian.PutUint64(hdr[0:], uint64(len(b.Code)))
	binary.LittleEndian.PutUint64(hdr[8:], b.Entry)
	n, err := w.Write(hdr[:])
	if err != nil {
		return int64(n), errors.Wrap(err, "write header")
	}
	m, err := w.Write(b.Code)
	if err != nil {
		return int64(n + m), errors.Wrap(err, "write code")
	}
	return int64(n + m), nil
}

// ReadBinary parses the file layout written by WriteTo.
func ReadBinary(r io.Reader) (*Binary, error) {
	var hdr [16]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	size := binary.LittleEndian.Uint64(hdr[0:])
	entry := binary.LittleEndian.Uint64(hdr[8:])
	if size > MaxCodeSize {
		return nil, errors.Errorf("code size %d too large", size)
	}
	// The header size is untrusted; let the buffer grow with the data read.
	code, err := io.ReadAll(io.LimitReader(r, int64(size)))
	if err != nil {
		return nil, errors.Wrapf(err, "read %d code bytes", size)
	}
	if uint64(len(code)) != size {
		return nil, errors.Wrapf(io.ErrUnexpectedEOF, "read %d of %d code bytes", len(code), size)
	}
	return &Binary{Entry: entry, Code: code}, nil
}

// Save writes b to fileName.
func Save(b *Binary, fileName string) error {
	f, err := os.Create(fileName)
	if err != nil {
		return errors.Wrap(err, "Save")
	}
	w := bufio.NewWriter(f)
	if _, err := b.WriteTo(w); err != nil {
		f.Close()
		return errors.Wrap(err, "Save")
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Wrap(err, "Save")
	}
	return errors.Wrap(f.Close(), "Save")
}

// Load reads a binary file.
func Load(fileName string) (*Binary, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrap(err, "Load")
	}
	defer f.Close()
	b, err := ReadBinary(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "Load %v", fileName)
	}
	return b, nil
}
