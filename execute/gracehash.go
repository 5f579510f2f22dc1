package execute

import (
	"context"
	"fmt"
	"hash/maphash"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/pax/spill"
	"github.com/leftmike/pax/sql"
)

const (
	DefaultMemoryRows = 64 * 1024
	DefaultPartitions = 16
	DefaultMaxDepth   = 3
)

type GraceOptions struct {
	// MemoryRows is the largest number of build rows joined in memory.
	MemoryRows int
	Partitions int
	// MaxDepth limits how many times an oversized partition is repartitioned.
	MaxDepth int
	Build    Side

	// KV holds spilled partitions; if it is nil, a memory KV is used for the join.
	KV          spill.KV
	Compression spill.Compression
}

// GraceStats describes how a grace hash join ran.
type GraceStats struct {
	Spilled    bool
	Partitions int
	Depth      int
}

type partitionPair struct {
	build, probe *spill.Partition
	depth        int
}

type partitionSource struct {
	r *spill.Reader
}

func (ps partitionSource) next(ctx context.Context) ([]sql.Value, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}
	return ps.r.Next()
}

type GraceHashJoinRows struct {
	left, right  sql.Rows
	lkeys, rkeys []int
	opts         GraceOptions
	columns      []string
	buildKeys    []int
	probeKeys    []int
	started      bool
	done         bool
	kv           spill.KV
	ownKV        bool
	area         *spill.Area
	work         []partitionPair
	p            *prober
	stats        GraceStats
	buf          []byte
}

// GraceHashJoin joins left and right like HashJoin while the build side has no more than
// opts.MemoryRows rows. Otherwise, both sides are partitioned by a hash of their keys into
// spill partitions, and each pair of partitions is joined in memory; a build partition which
// is still too large is partitioned again, with a new hash seed.
func GraceHashJoin(left, right sql.Rows, lkeys, rkeys []int,
	opts GraceOptions) (*GraceHashJoinRows, error) {

	err := checkJoinKeys("grace hash join", left, right, lkeys, rkeys)
	if err != nil {
		return nil, err
	}
	if opts.MemoryRows <= 0 {
		opts.MemoryRows = DefaultMemoryRows
	}
	if opts.Partitions < 2 {
		opts.Partitions = DefaultPartitions
	}
	if opts.MaxDepth < 0 {
		opts.MaxDepth = 0
	}

	gj := &GraceHashJoinRows{
		left:    left,
		right:   right,
		lkeys:   lkeys,
		rkeys:   rkeys,
		opts:    opts,
		columns: joinColumns(left, right),
	}
	if opts.Build == BuildRight {
		gj.buildKeys, gj.probeKeys = rkeys, lkeys
	} else {
		gj.buildKeys, gj.probeKeys = lkeys, rkeys
	}
	return gj, nil
}

func (gj *GraceHashJoinRows) Columns() []string {
	return gj.columns
}

func (gj *GraceHashJoinRows) Stats() GraceStats {
	return gj.stats
}

func (gj *GraceHashJoinRows) sides() (sql.Rows, sql.Rows) {
	if gj.opts.Build == BuildRight {
		return gj.right, gj.left
	}
	return gj.left, gj.right
}

func (gj *GraceHashJoinRows) partitionOf(seed maphash.Seed, row []sql.Value,
	keys []int) (int, bool) {

	var ok bool
	gj.buf, ok = appendKey(gj.buf[:0], row, keys)
	if !ok {
		return 0, false
	}
	var h maphash.Hash
	h.SetSeed(seed)
	h.Write(gj.buf)
	return int(h.Sum64() % uint64(gj.opts.Partitions)), true
}

func (gj *GraceHashJoinRows) newPartitions() []*spill.Partition {
	parts := make([]*spill.Partition, gj.opts.Partitions)
	for pdx := range parts {
		parts[pdx] = gj.area.NewPartition()
	}
	return parts
}

// partition appends each row from src to one of parts; rows with NULL keys are dropped.
func (gj *GraceHashJoinRows) partition(ctx context.Context, seed maphash.Seed, src rowSource,
	keys []int, parts []*spill.Partition) error {

	for {
		row, err := src.next(ctx)
		if err == io.EOF {
			break
		} else if err != nil {
			return err
		}
		err = gj.appendRow(seed, row, keys, parts)
		if err != nil {
			return err
		}
	}

	for _, part := range parts {
		err := part.Flush()
		if err != nil {
			return err
		}
	}
	return nil
}

func (gj *GraceHashJoinRows) appendRow(seed maphash.Seed, row []sql.Value, keys []int,
	parts []*spill.Partition) error {

	pdx, ok := gj.partitionOf(seed, row, keys)
	if !ok {
		return nil
	}
	return parts[pdx].Append(row)
}

func (gj *GraceHashJoinRows) pushPairs(build, probe []*spill.Partition, depth int) {
	gj.stats.Partitions += len(build)
	for pdx := len(build) - 1; pdx >= 0; pdx -= 1 {
		gj.work = append(gj.work,
			partitionPair{build: build[pdx], probe: probe[pdx], depth: depth})
	}
}

func (gj *GraceHashJoinRows) start(ctx context.Context) error {
	buildRows, probeRows := gj.sides()

	ht := newHashTable(gj.buildKeys)
	src := sourceOf(buildRows)
	var overflow []sql.Value
	for {
		row, err := src.next(ctx)
		if err == io.EOF {
			break
		} else if err != nil {
			return err
		}
		if ht.cnt == gj.opts.MemoryRows {
			overflow = row
			break
		}
		ht.add(row)
	}

	if overflow == nil {
		gj.p = &prober{
			ht:        ht,
			probe:     sourceOf(probeRows),
			probeKeys: gj.probeKeys,
			build:     gj.opts.Build,
		}
		return nil
	}

	gj.kv = gj.opts.KV
	if gj.kv == nil {
		kv, err := spill.MakeBTreeKV()
		if err != nil {
			return err
		}
		gj.kv = kv
		gj.ownKV = true
	}
	gj.area = spill.NewArea(gj.kv, gj.opts.Compression)
	gj.stats.Spilled = true

	log.WithFields(log.Fields{
		"area":        gj.area.ID(),
		"memory_rows": gj.opts.MemoryRows,
		"partitions":  gj.opts.Partitions,
	}).Debug("execute: grace hash join spilling")

	seed := maphash.MakeSeed()
	buildParts := gj.newPartitions()
	for _, rows := range ht.rows {
		for _, row := range rows {
			err := gj.appendRow(seed, row, gj.buildKeys, buildParts)
			if err != nil {
				return err
			}
		}
	}
	err := gj.appendRow(seed, overflow, gj.buildKeys, buildParts)
	if err != nil {
		return err
	}
	err = gj.partition(ctx, seed, src, gj.buildKeys, buildParts)
	if err != nil {
		return err
	}

	probeParts := gj.newPartitions()
	err = gj.partition(ctx, seed, sourceOf(probeRows), gj.probeKeys, probeParts)
	if err != nil {
		return err
	}

	gj.pushPairs(buildParts, probeParts, 0)
	return nil
}

// nextPair sets up the prober for the next pair of partitions to join; it returns io.EOF
// when there are none left.
func (gj *GraceHashJoinRows) nextPair(ctx context.Context) error {
	for len(gj.work) > 0 {
		pair := gj.work[len(gj.work)-1]
		gj.work = gj.work[:len(gj.work)-1]
		if pair.build.Len() == 0 || pair.probe.Len() == 0 {
			continue
		}

		if pair.build.Len() > int64(gj.opts.MemoryRows) {
			if pair.depth < gj.opts.MaxDepth {
				err := gj.repartition(ctx, pair)
				if err != nil {
					return err
				}
				continue
			}
			log.WithFields(log.Fields{
				"area":  gj.area.ID(),
				"rows":  pair.build.Len(),
				"depth": pair.depth,
			}).Warn("execute: grace hash join partition exceeds memory rows")
		}

		r, err := pair.build.Reader()
		if err != nil {
			return err
		}
		ht := newHashTable(gj.buildKeys)
		for {
			row, err := r.Next()
			if err == io.EOF {
				break
			} else if err != nil {
				return err
			}
			ht.add(row)
		}

		r, err = pair.probe.Reader()
		if err != nil {
			return err
		}
		gj.p = &prober{
			ht:        ht,
			probe:     partitionSource{r: r},
			probeKeys: gj.probeKeys,
			build:     gj.opts.Build,
		}
		return nil
	}

	return io.EOF
}

func (gj *GraceHashJoinRows) repartition(ctx context.Context, pair partitionPair) error {
	depth := pair.depth + 1
	if depth > gj.stats.Depth {
		gj.stats.Depth = depth
	}
	log.WithFields(log.Fields{
		"area":  gj.area.ID(),
		"rows":  pair.build.Len(),
		"depth": depth,
	}).Debug("execute: grace hash join repartitioning")

	seed := maphash.MakeSeed()
	r, err := pair.build.Reader()
	if err != nil {
		return err
	}
	buildParts := gj.newPartitions()
	err = gj.partition(ctx, seed, partitionSource{r: r}, gj.buildKeys, buildParts)
	if err != nil {
		return err
	}

	r, err = pair.probe.Reader()
	if err != nil {
		return err
	}
	probeParts := gj.newPartitions()
	err = gj.partition(ctx, seed, partitionSource{r: r}, gj.probeKeys, probeParts)
	if err != nil {
		return err
	}

	gj.pushPairs(buildParts, probeParts, depth)
	return nil
}

func (gj *GraceHashJoinRows) Next(ctx context.Context, dest []sql.Value) error {
	if gj.done {
		return io.EOF
	}
	if !gj.started {
		gj.started = true
		err := gj.start(ctx)
		if err != nil {
			return err
		}
	}

	for {
		if gj.p != nil {
			err := gj.p.next(ctx, dest)
			if err != io.EOF {
				return err
			}
			gj.p = nil
		}
		if gj.area == nil {
			gj.done = true
			return io.EOF
		}

		err := gj.nextPair(ctx)
		if err == io.EOF {
			gj.done = true
			rerr := gj.release()
			if rerr != nil {
				return rerr
			}
			return io.EOF
		} else if err != nil {
			return err
		}
	}
}

func (gj *GraceHashJoinRows) release() error {
	var err error
	if gj.area != nil {
		err = gj.area.Drop()
		gj.area = nil
	}
	if gj.ownKV && gj.kv != nil {
		kerr := gj.kv.Close()
		if err == nil {
			err = kerr
		}
	}
	gj.kv = nil
	gj.work = nil
	return err
}

func (gj *GraceHashJoinRows) Close() error {
	gj.started = true
	gj.done = true
	gj.p = nil
	err := gj.release()
	lerr := gj.left.Close()
	if err == nil {
		err = lerr
	}
	rerr := gj.right.Close()
	if err == nil {
		err = rerr
	}
	return err
}

func (_ *GraceHashJoinRows) Delete(ctx context.Context) error {
	return fmt.Errorf("execute: join rows may not be deleted")
}

func (_ *GraceHashJoinRows) Update(ctx context.Context, updates []sql.ColumnUpdate) error {
	return fmt.Errorf("execute: join rows may not be updated")
}
