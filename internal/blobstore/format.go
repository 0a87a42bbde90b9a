package blobstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/latentloop/diskindex/internal/model"
)

// Format: a .dtb file is a fixed header followed by one "run" per
// depth level 0..maxDepth, each run holding that depth's nodes
// serialized column-major. Columns within a run are independently
// decodable: reading the uri column alone never requires decoding
// kind/size/mtime/parent/n_children/n_desc.
var magic = [4]byte{'D', 'T', 'B', '1'}

const formatVersion uint32 = 1

type runInfo struct {
	rowCount uint32
	offset   uint64 // absolute byte offset of the run in the file
	length   uint64 // total byte length of the run (column header + sections)
}

type header struct {
	version  uint32
	maxDepth uint32
	runs     []runInfo // len == maxDepth+1
}

// columnLengths is the 7-word sub-header at the start of every run,
// recording the byte length of each column section so a reader can
// jump straight to any one column.
type columnLengths struct {
	uri, kind, size, mtime, parent, nChildren, nDesc uint64
}

const numColumns = 7

func writeHeader(w io.Writer, h header) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, h.version); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, h.maxDepth); err != nil {
		return err
	}
	for _, r := range h.runs {
		if err := binary.Write(w, binary.LittleEndian, r.rowCount); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, r.offset); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, r.length); err != nil {
			return err
		}
	}
	return nil
}

func headerByteLen(numRuns int) int64 {
	// magic(4) + version(4) + maxDepth(4) + numRuns*(rowCount4 + offset8 + length8)
	return 4 + 4 + 4 + int64(numRuns)*20
}

func readHeader(r io.ReaderAt) (header, error) {
	buf := make([]byte, 12)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return header{}, fmt.Errorf("reading dtb header: %w", err)
	}
	if !bytes.Equal(buf[0:4], magic[:]) {
		return header{}, fmt.Errorf("%w: bad magic", errCorrupt)
	}
	version := binary.LittleEndian.Uint32(buf[4:8])
	maxDepth := binary.LittleEndian.Uint32(buf[8:12])

	numRuns := int(maxDepth) + 1
	tableLen := numRuns * 20
	tableBuf := make([]byte, tableLen)
	if _, err := r.ReadAt(tableBuf, 12); err != nil {
		return header{}, fmt.Errorf("reading dtb run table: %w", err)
	}

	runs := make([]runInfo, numRuns)
	for i := 0; i < numRuns; i++ {
		off := i * 20
		runs[i] = runInfo{
			rowCount: binary.LittleEndian.Uint32(tableBuf[off : off+4]),
			offset:   binary.LittleEndian.Uint64(tableBuf[off+4 : off+12]),
			length:   binary.LittleEndian.Uint64(tableBuf[off+12 : off+20]),
		}
	}
	return header{version: version, maxDepth: maxDepth, runs: runs}, nil
}

// encodeRun serializes one depth level's nodes column-major, prefixed
// by the 7-word columnLengths sub-header.
func encodeRun(nodes []model.Node) []byte {
	var uriBuf, kindBuf, sizeBuf, mtimeBuf, parentBuf, nChildBuf, nDescBuf bytes.Buffer

	for _, n := range nodes {
		writeLenPrefixedString(&uriBuf, n.URI)

		var k byte
		if n.Kind == model.KindDir {
			k = 1
		}
		kindBuf.WriteByte(k)

		writeInt64(&sizeBuf, n.Size)
		writeInt64(&mtimeBuf, n.Mtime)

		if n.ParentURI != nil {
			parentBuf.WriteByte(1)
			writeLenPrefixedString(&parentBuf, *n.ParentURI)
		} else {
			parentBuf.WriteByte(0)
		}

		writeInt32(&nChildBuf, n.NChildren)
		writeInt32(&nDescBuf, n.NDesc)
	}

	cl := columnLengths{
		uri:       uint64(uriBuf.Len()),
		kind:      uint64(kindBuf.Len()),
		size:      uint64(sizeBuf.Len()),
		mtime:     uint64(mtimeBuf.Len()),
		parent:    uint64(parentBuf.Len()),
		nChildren: uint64(nChildBuf.Len()),
		nDesc:     uint64(nDescBuf.Len()),
	}

	var out bytes.Buffer
	writeColumnLengths(&out, cl)
	out.Write(uriBuf.Bytes())
	out.Write(kindBuf.Bytes())
	out.Write(sizeBuf.Bytes())
	out.Write(mtimeBuf.Bytes())
	out.Write(parentBuf.Bytes())
	out.Write(nChildBuf.Bytes())
	out.Write(nDescBuf.Bytes())
	return out.Bytes()
}

func columnLengthsByteLen() int64 { return int64(numColumns) * 8 }

func writeColumnLengths(w *bytes.Buffer, cl columnLengths) {
	for _, v := range []uint64{cl.uri, cl.kind, cl.size, cl.mtime, cl.parent, cl.nChildren, cl.nDesc} {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		w.Write(b[:])
	}
}

func readColumnLengths(r io.ReaderAt, runOffset uint64) (columnLengths, error) {
	buf := make([]byte, columnLengthsByteLen())
	if _, err := r.ReadAt(buf, int64(runOffset)); err != nil {
		return columnLengths{}, fmt.Errorf("reading run column table: %w", err)
	}
	vals := make([]uint64, numColumns)
	for i := range vals {
		vals[i] = binary.LittleEndian.Uint64(buf[i*8 : i*8+8])
	}
	return columnLengths{
		uri: vals[0], kind: vals[1], size: vals[2], mtime: vals[3],
		parent: vals[4], nChildren: vals[5], nDesc: vals[6],
	}, nil
}

func writeLenPrefixedString(b *bytes.Buffer, s string) {
	var l [4]byte
	binary.LittleEndian.PutUint32(l[:], uint32(len(s)))
	b.Write(l[:])
	b.WriteString(s)
}

func writeInt64(b *bytes.Buffer, v int64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	b.Write(buf[:])
}

func writeInt32(b *bytes.Buffer, v int32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	b.Write(buf[:])
}

// decodeURIColumn parses only the uri section of a run, given that
// section's bytes and the run's rowCount. Used by uri_prefix
// pushdown to find matching rows without touching other columns.
func decodeURIColumn(buf []byte, rowCount uint32) []string {
	uris := make([]string, rowCount)
	pos := 0
	for i := uint32(0); i < rowCount; i++ {
		l := binary.LittleEndian.Uint32(buf[pos : pos+4])
		pos += 4
		uris[i] = string(buf[pos : pos+int(l)])
		pos += int(l)
	}
	return uris
}

func decodeKindColumn(buf []byte, rowCount uint32) []model.Kind {
	kinds := make([]model.Kind, rowCount)
	for i := uint32(0); i < rowCount; i++ {
		if buf[i] == 1 {
			kinds[i] = model.KindDir
		} else {
			kinds[i] = model.KindFile
		}
	}
	return kinds
}

func decodeInt64Column(buf []byte, rowCount uint32) []int64 {
	out := make([]int64, rowCount)
	for i := uint32(0); i < rowCount; i++ {
		out[i] = int64(binary.LittleEndian.Uint64(buf[i*8 : i*8+8]))
	}
	return out
}

func decodeInt32Column(buf []byte, rowCount uint32) []int32 {
	out := make([]int32, rowCount)
	for i := uint32(0); i < rowCount; i++ {
		out[i] = int32(binary.LittleEndian.Uint32(buf[i*4 : i*4+4]))
	}
	return out
}

func decodeParentColumn(buf []byte, rowCount uint32) []*string {
	out := make([]*string, rowCount)
	pos := 0
	for i := uint32(0); i < rowCount; i++ {
		has := buf[pos]
		pos++
		if has == 1 {
			l := binary.LittleEndian.Uint32(buf[pos : pos+4])
			pos += 4
			s := string(buf[pos : pos+int(l)])
			pos += int(l)
			out[i] = &s
		}
	}
	return out
}

// decodeRun fully materializes one run's rows in column order. depth
// is stamped onto every node since a run holds exactly one depth
// level and the column format doesn't store it per-row.
func decodeRun(r io.ReaderAt, run runInfo, depth int) ([]model.Node, error) {
	cl, err := readColumnLengths(r, run.offset)
	if err != nil {
		return nil, err
	}
	base := run.offset + uint64(columnLengthsByteLen())

	sections := make(map[string][]byte, numColumns)
	cursor := base
	for _, c := range []struct {
		name string
		n    uint64
	}{
		{"uri", cl.uri}, {"kind", cl.kind}, {"size", cl.size},
		{"mtime", cl.mtime}, {"parent", cl.parent},
		{"nChildren", cl.nChildren}, {"nDesc", cl.nDesc},
	} {
		buf := make([]byte, c.n)
		if c.n > 0 {
			if _, err := r.ReadAt(buf, int64(cursor)); err != nil {
				return nil, fmt.Errorf("reading %s column: %w", c.name, err)
			}
		}
		sections[c.name] = buf
		cursor += c.n
	}

	uris := decodeURIColumn(sections["uri"], run.rowCount)
	kinds := decodeKindColumn(sections["kind"], run.rowCount)
	sizes := decodeInt64Column(sections["size"], run.rowCount)
	mtimes := decodeInt64Column(sections["mtime"], run.rowCount)
	parents := decodeParentColumn(sections["parent"], run.rowCount)
	nChildren := decodeInt32Column(sections["nChildren"], run.rowCount)
	nDesc := decodeInt32Column(sections["nDesc"], run.rowCount)

	nodes := make([]model.Node, run.rowCount)
	for i := uint32(0); i < run.rowCount; i++ {
		nodes[i] = model.Node{
			URI:       uris[i],
			Kind:      kinds[i],
			Size:      sizes[i],
			Mtime:     mtimes[i],
			ParentURI: parents[i],
			Depth:     depth,
			NChildren: nChildren[i],
			NDesc:     nDesc[i],
		}
	}
	return nodes, nil
}

// readURIColumnOnly decodes just the uri section of a run, for
// uri_prefix's first pass.
func readURIColumnOnly(r io.ReaderAt, run runInfo) ([]string, error) {
	cl, err := readColumnLengths(r, run.offset)
	if err != nil {
		return nil, err
	}
	base := run.offset + uint64(columnLengthsByteLen())
	buf := make([]byte, cl.uri)
	if cl.uri > 0 {
		if _, err := r.ReadAt(buf, int64(base)); err != nil {
			return nil, fmt.Errorf("reading uri column: %w", err)
		}
	}
	return decodeURIColumn(buf, run.rowCount), nil
}
