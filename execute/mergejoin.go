package execute

import (
	"context"
	"fmt"
	"io"

	"github.com/leftmike/pax/sql"
)

type MergeJoinRows struct {
	left, right  sql.Rows
	lkeys, rkeys []int
	columns      []string
	lsrc, rsrc   rowSource
	lrow, rrow   []sql.Value
	ldone, rdone bool
	started      bool
	run          [][]sql.Value
	rdx          int
	emitting     bool
}

// MergeJoin joins left and right, which must both be sorted in ascending order on their
// keys. Each output row is the columns of left followed by the columns of right.
func MergeJoin(left, right sql.Rows, lkeys, rkeys []int) (*MergeJoinRows, error) {
	err := checkJoinKeys("merge join", left, right, lkeys, rkeys)
	if err != nil {
		return nil, err
	}
	return &MergeJoinRows{
		left:    left,
		right:   right,
		lkeys:   lkeys,
		rkeys:   rkeys,
		columns: joinColumns(left, right),
		lsrc:    sourceOf(left),
		rsrc:    sourceOf(right),
	}, nil
}

func (mj *MergeJoinRows) Columns() []string {
	return mj.columns
}

func (mj *MergeJoinRows) Close() error {
	mj.started = true
	mj.ldone = true
	mj.rdone = true
	mj.emitting = false
	err := mj.left.Close()
	rerr := mj.right.Close()
	if err == nil {
		err = rerr
	}
	return err
}

func (mj *MergeJoinRows) nextLeft(ctx context.Context) error {
	row, err := mj.lsrc.next(ctx)
	if err == io.EOF {
		mj.ldone = true
		mj.lrow = nil
		return nil
	} else if err != nil {
		return err
	}
	if mj.lrow != nil && compareKeys(mj.lrow, mj.lkeys, row, mj.lkeys) > 0 {
		return fmt.Errorf("execute: merge join: left input not sorted: %s after %s",
			sql.FormatRow(row), sql.FormatRow(mj.lrow))
	}
	mj.lrow = row
	return nil
}

func (mj *MergeJoinRows) nextRight(ctx context.Context) error {
	row, err := mj.rsrc.next(ctx)
	if err == io.EOF {
		mj.rdone = true
		mj.rrow = nil
		return nil
	} else if err != nil {
		return err
	}
	if mj.rrow != nil && compareKeys(mj.rrow, mj.rkeys, row, mj.rkeys) > 0 {
		return fmt.Errorf("execute: merge join: right input not sorted: %s after %s",
			sql.FormatRow(row), sql.FormatRow(mj.rrow))
	}
	mj.rrow = row
	return nil
}

func (mj *MergeJoinRows) Next(ctx context.Context, dest []sql.Value) error {
	if !mj.started {
		mj.started = true
		err := mj.nextLeft(ctx)
		if err != nil {
			return err
		}
		err = mj.nextRight(ctx)
		if err != nil {
			return err
		}
	}

	for {
		if mj.emitting {
			if mj.rdx < len(mj.run) {
				n := copy(dest, mj.lrow)
				copy(dest[n:], mj.run[mj.rdx])
				mj.rdx += 1
				return nil
			}

			// The run of right rows is joined with each left row with the same key.
			run := mj.run[0]
			err := mj.nextLeft(ctx)
			if err != nil {
				return err
			}
			if !mj.ldone && compareKeys(mj.lrow, mj.lkeys, run, mj.rkeys) == 0 {
				mj.rdx = 0
				continue
			}
			mj.emitting = false
			mj.run = nil
		}

		if mj.ldone || mj.rdone {
			return io.EOF
		}

		if hasNullKey(mj.lrow, mj.lkeys) {
			err := mj.nextLeft(ctx)
			if err != nil {
				return err
			}
			continue
		}
		if hasNullKey(mj.rrow, mj.rkeys) {
			err := mj.nextRight(ctx)
			if err != nil {
				return err
			}
			continue
		}

		cmp := compareKeys(mj.lrow, mj.lkeys, mj.rrow, mj.rkeys)
		if cmp < 0 {
			err := mj.nextLeft(ctx)
			if err != nil {
				return err
			}
		} else if cmp > 0 {
			err := mj.nextRight(ctx)
			if err != nil {
				return err
			}
		} else {
			mj.run = append(mj.run[:0], mj.rrow)
			for {
				err := mj.nextRight(ctx)
				if err != nil {
					return err
				}
				if mj.rdone || compareKeys(mj.run[0], mj.rkeys, mj.rrow, mj.rkeys) != 0 {
					break
				}
				mj.run = append(mj.run, mj.rrow)
			}
			mj.emitting = true
			mj.rdx = 0
		}
	}
}

func (_ *MergeJoinRows) Delete(ctx context.Context) error {
	return fmt.Errorf("execute: join rows may not be deleted")
}

func (_ *MergeJoinRows) Update(ctx context.Context, updates []sql.ColumnUpdate) error {
	return fmt.Errorf("execute: join rows may not be updated")
}
