package cpu

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"

	"asmvm/pkg/isa"
)

const (
	stateEntry  = "cpu_state.json"
	memoryEntry = "memory.bin"
)

// snapshotState is the JSON half of a snapshot. Named repeats the named
// registers so a core dump can be read without tooling.
type snapshotState struct {
	Regs       [isa.NumRegisters]uint64 `json:"regs"`
	Named      map[string]uint64        `json:"named"`
	Flags      Flags                    `json:"flags"`
	Halted     bool                     `json:"halted"`
	Steps      int64                    `json:"steps"`
	MemorySize int                      `json:"memory_size"`
}

// Snapshot is a decoded core dump.
type Snapshot struct {
	Regs   [isa.NumRegisters]uint64
	Flags  Flags
	Halted bool
	Steps  int64
	Memory []byte
}

// SnapshotToBytes serialises the machine into a ZIP archive holding
// cpu_state.json and memory.bin.
func (c *CPU) SnapshotToBytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	state := snapshotState{
		Regs:       c.Regs,
		Named:      make(map[string]uint64),
		Flags:      c.Flags,
		Halted:     c.Halted,
		Steps:      c.steps,
		MemorySize: len(c.Memory),
	}
	for _, r := range isa.Registers() {
		state.Named[r.Name] = c.Regs[r.ID]
	}

	jsonData, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal cpu_state")
	}
	if err := writeZipEntry(zw, stateEntry, jsonData); err != nil {
		return nil, err
	}
	if err := writeZipEntry(zw, memoryEntry, c.Memory); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "close zip")
	}
	return buf.Bytes(), nil
}

// ReadSnapshot decodes an archive written by SnapshotToBytes.
func ReadSnapshot(data []byte) (*Snapshot, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrap(err, "open zip")
	}
	fileMap := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		fileMap[f.Name] = f
	}

	jsonData, err := readZipEntry(fileMap, stateEntry)
	if err != nil {
		return nil, err
	}
	var state snapshotState
	if err := json.Unmarshal(jsonData, &state); err != nil {
		return nil, errors.Wrap(err, "unmarshal cpu_state")
	}
	mem, err := readZipEntry(fileMap, memoryEntry)
	if err != nil {
		return nil, err
	}
	if state.MemorySize != 0 && state.MemorySize != len(mem) {
		return nil, errors.Errorf("memory.bin holds %d bytes, state says %d", len(mem), state.MemorySize)
	}
	return &Snapshot{
		Regs:   state.Regs,
		Flags:  state.Flags,
		Halted: state.Halted,
		Steps:  state.Steps,
		Memory: mem,
	}, nil
}

// RestoreFromBytes replaces the machine state with a snapshot, memory size
// included.
func (c *CPU) RestoreFromBytes(data []byte) error {
	s, err := ReadSnapshot(data)
	if err != nil {
		return err
	}
	c.Regs = s.Regs
	c.Flags = s.Flags
	c.Halted = s.Halted
	c.steps = s.Steps
	c.Memory = s.Memory
	return nil
}

// SaveSnapshot writes a snapshot archive to path.
func (c *CPU) SaveSnapshot(path string) error {
	data, err := c.SnapshotToBytes()
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "SaveSnapshot")
}

// LoadSnapshot reads a snapshot archive from path.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "LoadSnapshot")
	}
	return ReadSnapshot(data)
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return errors.Wrapf(err, "create zip entry %q", name)
	}
	_, err = w.Write(data)
	return err
}

func readZipEntry(fileMap map[string]*zip.File, name string) ([]byte, error) {
	f, ok := fileMap[name]
	if !ok {
		return nil, errors.Errorf("zip entry %q not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "open zip entry %q", name)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
