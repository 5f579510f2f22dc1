package spill

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/leftmike/pax/sql"
)

const (
	flushRows = 256
	readRows  = 256
)

// Area is a namespace of spill partitions within a KV, owned by a single join.
type Area struct {
	kv       KV
	comp     Compression
	id       uuid.UUID
	lastPart uint32
}

// Partition is a sequence of rows spilled to an area. Rows are appended until the partition
// is read; a partition may be read more than once.
type Partition struct {
	area    *Area
	id      uint32
	seq     uint64
	rows    int64
	bytes   int64
	pending []Entry
}

type Reader struct {
	part *Partition
	next uint64
	rows [][]sql.Value
	idx  int
	done bool
}

func NewArea(kv KV, comp Compression) *Area {
	return &Area{
		kv:   kv,
		comp: comp,
		id:   uuid.New(),
	}
}

func (a *Area) ID() uuid.UUID {
	return a.id
}

func (a *Area) NewPartition() *Partition {
	a.lastPart += 1
	return &Partition{
		area: a,
		id:   a.lastPart,
	}
}

func (a *Area) prefix(buf []byte) []byte {
	return append(buf, a.id[:]...)
}

func (a *Area) makeKey(part uint32, seq uint64) []byte {
	key := a.prefix(make([]byte, 0, len(a.id)+12))
	key = binary.BigEndian.AppendUint32(key, part)
	return binary.BigEndian.AppendUint64(key, seq)
}

func (a *Area) partPrefix(part uint32) []byte {
	return binary.BigEndian.AppendUint32(a.prefix(make([]byte, 0, len(a.id)+12)), part)
}

// Drop deletes every partition of the area.
func (a *Area) Drop() error {
	err := a.kv.DeletePrefix(a.prefix(nil))
	if err != nil {
		return err
	}

	log.WithField("area", a.id).Debug("spill: dropped area")
	return nil
}

func (p *Partition) Len() int64 {
	return p.rows
}

// Bytes returns the number of bytes, after compression, of the rows in the partition.
func (p *Partition) Bytes() int64 {
	return p.bytes
}

func (p *Partition) Append(row []sql.Value) error {
	val, err := p.area.comp.Compress(nil, EncodeRow(nil, row))
	if err != nil {
		return fmt.Errorf("spill: compress: %s", err)
	}

	p.seq += 1
	p.pending = append(p.pending, Entry{Key: p.area.makeKey(p.id, p.seq), Val: val})
	p.rows += 1
	p.bytes += int64(len(val))

	if len(p.pending) >= flushRows {
		return p.Flush()
	}
	return nil
}

// Flush writes any buffered rows to the KV.
func (p *Partition) Flush() error {
	if len(p.pending) == 0 {
		return nil
	}

	err := p.area.kv.Write(p.pending)
	if err != nil {
		return err
	}

	p.pending = nil
	return nil
}

// Reader flushes the partition and returns a reader of its rows in the order they were
// appended.
func (p *Partition) Reader() (*Reader, error) {
	err := p.Flush()
	if err != nil {
		return nil, err
	}
	return &Reader{
		part: p,
		next: 1,
	}, nil
}

// fill reads the next batch of rows; the KV is not held open between batches, so that the
// partitions of the area may be written while it is being read.
func (r *Reader) fill() error {
	a := r.part.area
	r.rows = r.rows[:0]
	r.idx = 0

	var buf []byte
	cnt, err := a.kv.Scan(a.partPrefix(r.part.id), a.makeKey(r.part.id, r.next), readRows,
		func(key, val []byte) error {
			var err error
			buf, err = a.comp.Decompress(buf, val)
			if err != nil {
				return fmt.Errorf("spill: decompress: %s", err)
			}
			row, err := DecodeRow(buf)
			if err != nil {
				return err
			}
			r.rows = append(r.rows, row)
			r.next = binary.BigEndian.Uint64(key[len(key)-8:]) + 1
			return nil
		})
	if err != nil {
		return err
	}
	if cnt < readRows {
		r.done = true
	}
	return nil
}

// Next returns the next row or io.EOF.
func (r *Reader) Next() ([]sql.Value, error) {
	if r.idx == len(r.rows) {
		if r.done {
			return nil, io.EOF
		}
		err := r.fill()
		if err != nil {
			return nil, err
		}
		if len(r.rows) == 0 {
			return nil, io.EOF
		}
	}

	row := r.rows[r.idx]
	r.idx += 1
	return row, nil
}
