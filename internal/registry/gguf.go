package registry

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// GGUFInfo is the subset of GGUF header metadata used to describe a model.
type GGUFInfo struct {
	Version       uint32
	Architecture  string
	Name          string
	ContextLength int
	LayerCount    int
	FileType      int
}

var errNotGGUF = errors.New("not a gguf file")

// gguf metadata value types
const (
	ggufUint8 uint32 = iota
	ggufInt8
	ggufUint16
	ggufInt16
	ggufUint32
	ggufInt32
	ggufFloat32
	ggufBool
	ggufString
	ggufArray
	ggufUint64
	ggufInt64
	ggufFloat64
)

const (
	maxKeyLen     = 1 << 16
	maxStringLen  = 1 << 20
	maxKVCount    = 1 << 20
	maxArrayDepth = 4
)

// ReadGGUFInfo opens path and reads its metadata key/value section.
// Tensor info is never read.
func ReadGGUFInfo(path string) (GGUFInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return GGUFInfo{}, err
	}
	defer f.Close()
	return readGGUF(bufio.NewReaderSize(f, 64*1024))
}

type ggufReader struct {
	r  io.Reader
	v1 bool // v1 files use 32-bit counts and string lengths
}

func readGGUF(r io.Reader) (GGUFInfo, error) {
	var info GGUFInfo
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return info, errNotGGUF
	}
	if string(magic) != "GGUF" {
		return info, errNotGGUF
	}
	if err := binary.Read(r, binary.LittleEndian, &info.Version); err != nil {
		return info, fmt.Errorf("gguf version: %w", err)
	}
	if info.Version == 0 || info.Version > 3 {
		return info, fmt.Errorf("unsupported gguf version %d", info.Version)
	}
	gr := &ggufReader{r: r, v1: info.Version == 1}
	if _, err := gr.count(); err != nil { // tensor count
		return info, fmt.Errorf("gguf tensor count: %w", err)
	}
	kvCount, err := gr.count()
	if err != nil {
		return info, fmt.Errorf("gguf kv count: %w", err)
	}
	if kvCount > maxKVCount {
		return info, fmt.Errorf("gguf kv count too large: %d", kvCount)
	}

	contextByArch := map[string]int{}
	layersByArch := map[string]int{}
	nLayer := 0
	for i := uint64(0); i < kvCount; i++ {
		key, err := gr.str(maxKeyLen)
		if err != nil {
			return info, fmt.Errorf("gguf key %d: %w", i, err)
		}
		var typ uint32
		if err := binary.Read(r, binary.LittleEndian, &typ); err != nil {
			return info, fmt.Errorf("gguf type of %q: %w", key, err)
		}
		switch {
		case key == "general.architecture" && typ == ggufString:
			if info.Architecture, err = gr.str(maxStringLen); err != nil {
				return info, err
			}
		case key == "general.name" && typ == ggufString:
			if info.Name, err = gr.str(maxStringLen); err != nil {
				return info, err
			}
		case key == "general.file_type" && isInteger(typ):
			n, err := gr.integer(typ)
			if err != nil {
				return info, err
			}
			info.FileType = int(n)
		case key == "hparams.n_layer" && isInteger(typ):
			n, err := gr.integer(typ)
			if err != nil {
				return info, err
			}
			nLayer = int(n)
		case strings.HasSuffix(key, ".context_length") && isInteger(typ):
			n, err := gr.integer(typ)
			if err != nil {
				return info, err
			}
			contextByArch[strings.TrimSuffix(key, ".context_length")] = int(n)
		case strings.HasSuffix(key, ".block_count") && isInteger(typ):
			n, err := gr.integer(typ)
			if err != nil {
				return info, err
			}
			layersByArch[strings.TrimSuffix(key, ".block_count")] = int(n)
		default:
			if err := gr.skip(typ, 0); err != nil {
				return info, fmt.Errorf("gguf value of %q: %w", key, err)
			}
		}
	}
	info.ContextLength = pickArch(contextByArch, info.Architecture)
	info.LayerCount = pickArch(layersByArch, info.Architecture)
	if info.LayerCount == 0 {
		info.LayerCount = nLayer
	}
	return info, nil
}

// pickArch prefers the declared architecture and falls back to the only entry.
func pickArch(m map[string]int, arch string) int {
	if v, ok := m[arch]; ok {
		return v
	}
	if len(m) == 1 {
		for _, v := range m {
			return v
		}
	}
	return 0
}

func isInteger(typ uint32) bool {
	switch typ {
	case ggufUint8, ggufInt8, ggufUint16, ggufInt16, ggufUint32, ggufInt32, ggufUint64, ggufInt64:
		return true
	}
	return false
}

func scalarSize(typ uint32) int64 {
	switch typ {
	case ggufUint8, ggufInt8, ggufBool:
		return 1
	case ggufUint16, ggufInt16:
		return 2
	case ggufUint32, ggufInt32, ggufFloat32:
		return 4
	case ggufUint64, ggufInt64, ggufFloat64:
		return 8
	}
	return 0
}

func (g *ggufReader) count() (uint64, error) {
	if g.v1 {
		var n uint32
		err := binary.Read(g.r, binary.LittleEndian, &n)
		return uint64(n), err
	}
	var n uint64
	err := binary.Read(g.r, binary.LittleEndian, &n)
	return n, err
}

func (g *ggufReader) str(limit uint64) (string, error) {
	n, err := g.count()
	if err != nil {
		return "", err
	}
	if n > limit {
		return "", fmt.Errorf("gguf string too long: %d", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(g.r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func (g *ggufReader) integer(typ uint32) (int64, error) {
	b := make([]byte, scalarSize(typ))
	if _, err := io.ReadFull(g.r, b); err != nil {
		return 0, err
	}
	switch typ {
	case ggufUint8:
		return int64(b[0]), nil
	case ggufInt8:
		return int64(int8(b[0])), nil
	case ggufUint16:
		return int64(binary.LittleEndian.Uint16(b)), nil
	case ggufInt16:
		return int64(int16(binary.LittleEndian.Uint16(b))), nil
	case ggufUint32:
		return int64(binary.LittleEndian.Uint32(b)), nil
	case ggufInt32:
		return int64(int32(binary.LittleEndian.Uint32(b))), nil
	case ggufUint64:
		return int64(binary.LittleEndian.Uint64(b)), nil
	case ggufInt64:
		return int64(binary.LittleEndian.Uint64(b)), nil
	}
	return 0, fmt.Errorf("gguf type %d is not an integer", typ)
}

func (g *ggufReader) discard(n int64) error {
	_, err := io.CopyN(io.Discard, g.r, n)
	return err
}

func (g *ggufReader) skip(typ uint32, depth int) error {
	if sz := scalarSize(typ); sz > 0 {
		return g.discard(sz)
	}
	switch typ {
	case ggufString:
		n, err := g.count()
		if err != nil {
			return err
		}
		return g.discard(int64(n))
	case ggufArray:
		if depth >= maxArrayDepth {
			return errors.New("gguf arrays nested too deep")
		}
		var elem uint32
		if err := binary.Read(g.r, binary.LittleEndian, &elem); err != nil {
			return err
		}
		n, err := g.count()
		if err != nil {
			return err
		}
		if sz := scalarSize(elem); sz > 0 {
			return g.discard(sz * int64(n))
		}
		for i := uint64(0); i < n; i++ {
			if err := g.skip(elem, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unknown gguf value type %d", typ)
}
