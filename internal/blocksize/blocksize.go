package blocksize

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strconv"

	"github.com/dustin/go-humanize"
)

var (
	ErrInvalidBlockSize = errors.New("invalid block size")
	ErrOverflow         = errors.New("size overflows 64 bits")
)

// Unit is the multiplier selected by a size suffix.
type Unit uint64

const (
	Byte Unit = 1
	Kibi Unit = 1 << 10
	Mebi Unit = 1 << 20
	Gibi Unit = 1 << 30
)

// Minimum is the smallest block size accepted from the command line.
const Minimum = 1024

// Default is the block size used when none is given (1 MiB).
var Default = BlockSize{Magnitude: 1, Unit: Mebi}

// Limits bounds an acceptable block size in bytes. Max 0 means no upper bound.
type Limits struct {
	Min uint64
	Max uint64
}

// DefaultLimits mirrors the bounds the tool has always enforced.
var DefaultLimits = Limits{Min: Minimum, Max: 512 << 20}

// BlockSize is a parsed size: Magnitude scaled by Unit.
type BlockSize struct {
	Magnitude uint64
	Unit      Unit
}

// Bytes returns the size in bytes. Values produced by Parse never overflow.
func (b BlockSize) Bytes() uint64 {
	return b.Magnitude * uint64(b.Unit)
}

// Int returns the size as an int, or an error when it does not fit.
func (b BlockSize) Int() (int, error) {
	n := b.Bytes()
	if n > math.MaxInt {
		return 0, fmt.Errorf("%w: %d bytes does not fit in int", ErrInvalidBlockSize, n)
	}
	return int(n), nil
}

func (b BlockSize) String() string {
	return humanize.IBytes(b.Bytes())
}

// Parse parses "<digits>[K|M|G]" and enforces the 1024-byte floor.
func Parse(s string) (BlockSize, error) {
	return ParseWithin(s, Limits{Min: Minimum})
}

// ParseWithin parses s and checks the result against limits.
func ParseWithin(s string, limits Limits) (BlockSize, error) {
	bs, err := parse(s)
	if err != nil {
		return BlockSize{}, err
	}
	n := bs.Bytes()
	if n < limits.Min {
		return BlockSize{}, fmt.Errorf("%w: %q is %d bytes, minimum is %d", ErrInvalidBlockSize, s, n, limits.Min)
	}
	if limits.Max > 0 && n > limits.Max {
		return BlockSize{}, fmt.Errorf("%w: %q is %d bytes, maximum is %d", ErrInvalidBlockSize, s, n, limits.Max)
	}
	return bs, nil
}

// ParseSize parses the same syntax as Parse without any lower bound.
// It is used for memory budgets and rates, where 0 is meaningful.
func ParseSize(s string) (uint64, error) {
	bs, err := parse(s)
	if err != nil {
		return 0, err
	}
	return bs.Bytes(), nil
}

func parse(s string) (BlockSize, error) {
	if s == "" {
		return BlockSize{}, fmt.Errorf("%w: empty value", ErrInvalidBlockSize)
	}

	digits, unit := s, Byte
	switch s[len(s)-1] {
	case 'K', 'k':
		unit = Kibi
	case 'M', 'm':
		unit = Mebi
	case 'G', 'g':
		unit = Gibi
	}
	if unit != Byte {
		digits = s[:len(s)-1]
	}
	if digits == "" {
		return BlockSize{}, fmt.Errorf("%w: %q has no digits", ErrInvalidBlockSize, s)
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return BlockSize{}, fmt.Errorf("%w: %q is not of the form <digits>[K|M|G]", ErrInvalidBlockSize, s)
		}
	}

	magnitude, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return BlockSize{}, fmt.Errorf("%w: %w: %q", ErrInvalidBlockSize, ErrOverflow, s)
		}
		return BlockSize{}, fmt.Errorf("%w: %v", ErrInvalidBlockSize, err)
	}

	if hi, _ := bits.Mul64(magnitude, uint64(unit)); hi != 0 {
		return BlockSize{}, fmt.Errorf("%w: %w: %q", ErrInvalidBlockSize, ErrOverflow, s)
	}

	return BlockSize{Magnitude: magnitude, Unit: unit}, nil
}
