package archive

import (
	"cmp"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/roach88/ifthen/internal/ir"
)

const wordBits = 64

// Field is a contiguous bit range inside one storage word.
type Field struct {
	Position uint32
	Width    uint32
}

// End returns the first bit past the field.
func (f Field) End() uint32 { return f.Position + f.Width }

func (f Field) word() uint32 { return f.Position / wordBits }

// compareFree orders free fields by (width, position): best fit by size,
// lowest address as tiebreak.
func compareFree(x, y Field) int {
	if c := cmp.Compare(x.Width, y.Width); c != 0 {
		return c
	}
	return cmp.Compare(x.Position, y.Position)
}

// chunk is the storage owned by one chunk key.
type chunk struct {
	words []uint64
	free  []Field // sorted by compareFree
}

// allocate returns a field of the given width (1..64). It reuses the
// smallest free field that fits, splitting off the remainder, and only
// appends a new word when no free field is wide enough.
func (c *chunk) allocate(width uint32) Field {
	i, _ := slices.BinarySearchFunc(c.free, Field{Width: width}, compareFree)
	if i < len(c.free) {
		f := c.free[i]
		c.free = slices.Delete(c.free, i, i+1)
		if f.Width > width {
			c.insertFree(Field{Position: f.Position + width, Width: f.Width - width})
		}
		return Field{Position: f.Position, Width: width}
	}

	pos := uint32(len(c.words)) * wordBits
	c.words = append(c.words, 0)
	if width < wordBits {
		c.insertFree(Field{Position: pos + width, Width: wordBits - width})
	}
	return Field{Position: pos, Width: width}
}

// release returns f to the free list, merging it with free neighbours that
// lie in the same word.
func (c *chunk) release(f Field) {
	for i := 0; i < len(c.free); {
		n := c.free[i]
		switch {
		case n.word() == f.word() && n.End() == f.Position:
			f = Field{Position: n.Position, Width: n.Width + f.Width}
		case n.word() == f.word() && f.End() == n.Position:
			f = Field{Position: f.Position, Width: f.Width + n.Width}
		default:
			i++
			continue
		}
		c.free = slices.Delete(c.free, i, i+1)
	}
	c.insertFree(f)
}

func (c *chunk) insertFree(f Field) {
	i, _ := slices.BinarySearchFunc(c.free, f, compareFree)
	c.free = slices.Insert(c.free, i, f)
}

func fieldMask(width uint32) uint64 {
	if width >= wordBits {
		return math.MaxUint64
	}
	return uint64(1)<<width - 1
}

// inWord reports whether f is addressable without crossing a word.
func (c *chunk) inWord(f Field) bool {
	shift := f.Position % wordBits
	ok := f.Width >= 1 && shift+f.Width <= wordBits && int(f.word()) < len(c.words)
	if !ok {
		slog.Error("bit field crosses a storage word", "position", f.Position, "width", f.Width)
	}
	return ok
}

func (c *chunk) read(f Field) uint64 {
	if !c.inWord(f) {
		return 0
	}
	return (c.words[f.word()] >> (f.Position % wordBits)) & fieldMask(f.Width)
}

// write stores bits into f and reports whether the stored bits changed.
func (c *chunk) write(f Field, bits uint64) bool {
	if !c.inWord(f) {
		return false
	}
	mask := fieldMask(f.Width)
	shift := f.Position % wordBits
	bits &= mask
	w := &c.words[f.word()]
	if (*w>>shift)&mask == bits {
		return false
	}
	*w = *w&^(mask<<shift) | bits<<shift
	return true
}

// encode converts value into the raw bits of format.
func encode(format ir.Format, value ir.Value) (uint64, error) {
	v, ok := value.Convert(format.Kind)
	if !ok {
		if value.Kind() == ir.KindEmpty || (value.Kind() == ir.KindBool) != (format.Kind == ir.KindBool) {
			return 0, fmt.Errorf("%s into %v: %w", value.Kind(), format, ir.ErrKindMismatch)
		}
		return 0, fmt.Errorf("%s into %v: %w", value, format, ir.ErrOutOfRange)
	}
	if !v.Fits(format) {
		return 0, fmt.Errorf("%s into %v: %w", value, format, ir.ErrOutOfRange)
	}

	switch format.Kind {
	case ir.KindBool:
		b, _ := v.Bool()
		if b {
			return 1, nil
		}
		return 0, nil
	case ir.KindUnsigned:
		u, _ := v.Unsigned()
		return u, nil
	case ir.KindSigned:
		i, _ := v.Signed()
		return uint64(i) & fieldMask(uint32(format.Width)), nil
	case ir.KindFloat:
		f, _ := v.Float()
		if format.Width == 32 {
			return uint64(math.Float32bits(float32(f))), nil
		}
		return math.Float64bits(f), nil
	}
	return 0, fmt.Errorf("%v: %w", format, ErrInvalidFormat)
}

// decode converts raw bits of format back into a Value, sign-extending
// signed fields.
func decode(format ir.Format, bits uint64) ir.Value {
	switch format.Kind {
	case ir.KindBool:
		return ir.BoolValue(bits != 0)
	case ir.KindUnsigned:
		return ir.UnsignedValue(bits)
	case ir.KindSigned:
		shift := wordBits - uint32(format.Width)
		return ir.SignedValue(int64(bits<<shift) >> shift)
	case ir.KindFloat:
		if format.Width == 32 {
			return ir.FloatValue(float64(math.Float32frombits(uint32(bits))))
		}
		return ir.FloatValue(math.Float64frombits(bits))
	}
	return ir.EmptyValue()
}
