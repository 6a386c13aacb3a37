package font

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidCFF reports a malformed CFF font program.
	ErrInvalidCFF = errors.New("invalid CFF data")

	// ErrUnsupportedCFF reports a valid CFF feature this package does not
	// handle.
	ErrUnsupportedCFF = errors.New("unsupported CFF feature")
)

func invalidf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidCFF, format, args...)
}

// EscapedOp returns the DICT key of the two-byte operator 12 b.
func EscapedOp(b byte) int { return 12<<8 | int(b) }

// Top DICT operators whose value (the last operand for Private) is an
// absolute offset into the font program.
const (
	OpCharset     = 15
	OpEncoding    = 16
	OpCharStrings = 17
	OpPrivate     = 18
)

var (
	OpFDArray  = EscapedOp(36)
	OpFDSelect = EscapedOp(37)
)

func isOffsetOp(op int) bool {
	switch op {
	case OpCharset, OpEncoding, OpCharStrings, OpPrivate, OpFDArray, OpFDSelect:
		return true
	}
	return false
}

// CFFOperand is a DICT operand. Reals are kept as their shortest decimal
// text, e.g. ".001" or "287e-6"; Int is then unused.
type CFFOperand struct {
	Int  int
	Real string
}

// IntOperand returns an integer operand.
func IntOperand(n int) CFFOperand { return CFFOperand{Int: n} }

// RealOperand returns a real operand.
func RealOperand(s string) CFFOperand { return CFFOperand{Real: s} }

// IsReal reports whether o is a real operand.
func (o CFFOperand) IsReal() bool { return o.Real != "" }

func (o CFFOperand) String() string {
	if o.IsReal() {
		return o.Real
	}
	return strconv.Itoa(o.Int)
}

// CFFDict maps DICT operators to their operands. One-byte operators are
// keys 0..21, two-byte operators are EscapedOp(b).
type CFFDict map[int][]CFFOperand

// Ops returns the operators of d in increasing order.
func (d CFFDict) Ops() []int {
	ops := make([]int, 0, len(d))
	for op := range d {
		ops = append(ops, op)
	}
	sort.Ints(ops)
	return ops
}

// nibbles of real operands, index is the nibble value
var realNibbles = [16]string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", ".", "e", "e-", "", "-", ""}

// ParseCFFDict parses DICT data. Operands after the last operator are
// ignored.
func ParseCFFDict(data []byte) (CFFDict, error) {
	d := CFFDict{}
	var operands []CFFOperand
	for i := 0; i < len(data); {
		b0 := int(data[i])
		i++
		switch {
		case b0 >= 32 && b0 <= 246:
			operands = append(operands, IntOperand(b0-139))
		case b0 >= 247 && b0 <= 250:
			if i >= len(data) {
				return nil, invalidf("dict truncated in operand at %d", i-1)
			}
			operands = append(operands, IntOperand((b0-247)*256+int(data[i])+108))
			i++
		case b0 >= 251 && b0 <= 254:
			if i >= len(data) {
				return nil, invalidf("dict truncated in operand at %d", i-1)
			}
			operands = append(operands, IntOperand(-(b0-251)*256-int(data[i])-108))
			i++
		case b0 == 28:
			if i+2 > len(data) {
				return nil, invalidf("dict truncated in operand at %d", i-1)
			}
			operands = append(operands, IntOperand(int(int16(binary.BigEndian.Uint16(data[i:])))))
			i += 2
		case b0 == 29:
			if i+4 > len(data) {
				return nil, invalidf("dict truncated in operand at %d", i-1)
			}
			operands = append(operands, IntOperand(int(int32(binary.BigEndian.Uint32(data[i:])))))
			i += 4
		case b0 == 30:
			var sb strings.Builder
			for done := false; !done; {
				if i >= len(data) {
					return nil, invalidf("dict truncated in real at %d", i)
				}
				b := data[i]
				i++
				for _, nibble := range [2]byte{b >> 4, b & 15} {
					if nibble == 15 {
						done = true
						break
					}
					if nibble == 13 {
						return nil, invalidf("reserved nibble in real at %d", i-1)
					}
					sb.WriteString(realNibbles[nibble])
				}
			}
			r, err := FormatCFFReal(sb.String())
			if err != nil {
				return nil, err
			}
			operands = append(operands, RealOperand(r))
		case b0 <= 21:
			op := b0
			if b0 == 12 {
				if i >= len(data) {
					return nil, invalidf("dict truncated in operator at %d", i-1)
				}
				op = EscapedOp(data[i])
				i++
			}
			d[op] = operands
			operands = nil
		default:
			return nil, invalidf("bad dict byte %d at %d", b0, i-1)
		}
	}
	return d, nil
}

// SerializeCFFDict returns the shortest encoding of d, operators in
// increasing order.
func SerializeCFFDict(d CFFDict) ([]byte, error) {
	var out []byte
	for _, op := range d.Ops() {
		for _, o := range d[op] {
			var err error
			if out, err = appendCFFOperand(out, o); err != nil {
				return nil, err
			}
		}
		if op >= 12<<8 {
			out = append(out, 12, byte(op))
		} else {
			out = append(out, byte(op))
		}
	}
	return out, nil
}

func appendCFFOperand(out []byte, o CFFOperand) ([]byte, error) {
	if o.IsReal() {
		s, err := FormatCFFReal(o.Real)
		if err != nil {
			return nil, err
		}
		var nibbles []byte
		for i := 0; i < len(s); i++ {
			switch c := s[i]; {
			case c >= '0' && c <= '9':
				nibbles = append(nibbles, c-'0')
			case c == '.':
				nibbles = append(nibbles, 10)
			case c == '-':
				nibbles = append(nibbles, 14)
			case c == 'e' && i+1 < len(s) && s[i+1] == '-':
				nibbles = append(nibbles, 12)
				i++
			case c == 'e':
				nibbles = append(nibbles, 11)
			}
		}
		nibbles = append(nibbles, 15)
		if len(nibbles)%2 != 0 {
			nibbles = append(nibbles, 15)
		}
		out = append(out, 30)
		for i := 0; i < len(nibbles); i += 2 {
			out = append(out, nibbles[i]<<4|nibbles[i+1])
		}
		return out, nil
	}

	n := o.Int
	switch {
	case n >= -107 && n <= 107:
		return append(out, byte(n+139)), nil
	case n >= 108 && n <= 1131:
		return append(out, byte((n-108)>>8+247), byte(n-108)), nil
	case n >= -1131 && n <= -108:
		return append(out, byte((-n-108)>>8+251), byte(-n-108)), nil
	case n >= -32768 && n <= 32767:
		return append(out, 28, byte(n>>8), byte(n)), nil
	case n >= -1<<31 && n <= 1<<31-1:
		return append(out, 29, byte(n>>24), byte(n>>16), byte(n>>8), byte(n)), nil
	}
	return nil, invalidf("integer operand %d out of range", n)
}

// FormatCFFReal rewrites a decimal real ("0.001", "2.87E-4", "-5") to the
// shortest text with the same value, using an exponent only when it
// saves digits.
func FormatCFFReal(s string) (string, error) {
	orig := s
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	exp := 0
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		e, err := strconv.Atoi(s[i+1:])
		if err != nil {
			return "", invalidf("bad real %q", orig)
		}
		exp, s = e, s[:i]
	}
	intPart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	digits := intPart + fracPart
	if digits == "" || strings.Trim(digits, "0123456789") != "" {
		return "", invalidf("bad real %q", orig)
	}
	exp -= len(fracPart)

	sign := ""
	if neg {
		sign = "-"
	}
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return sign + "0", nil
	}
	n := len(digits)
	digits = strings.TrimRight(digits, "0")
	exp += n - len(digits)
	n = len(digits)

	switch {
	case exp == 2:
		return sign + digits + "00", nil
	case exp > 1 || exp < -2-n:
		return sign + digits + "e" + strconv.Itoa(exp), nil
	case exp < 0 && -exp <= n:
		return sign + digits[:n+exp] + "." + digits[n+exp:], nil
	case exp >= 0:
		return sign + digits + strings.Repeat("0", exp), nil
	}
	return sign + "." + strings.Repeat("0", -exp-n) + digits, nil
}

// ParseCFFIndex parses the INDEX at the start of data and returns the
// offset just past it and its items, which alias data.
func ParseCFFIndex(data []byte) (end int, items [][]byte, err error) {
	if len(data) >= 2 && data[0] == 0 && data[1] == 0 {
		return 2, nil, nil
	}
	if len(data) < 3 {
		return 0, nil, invalidf("index too short for header")
	}
	count := int(binary.BigEndian.Uint16(data))
	offSize := int(data[2])
	if offSize < 1 || offSize > 4 {
		return 0, nil, invalidf("bad index offSize %d", offSize)
	}
	if len(data) < 3+(count+1)*offSize {
		return 0, nil, invalidf("index too short for offsets")
	}
	offsets := make([]int, count+1)
	for i := range offsets {
		offsets[i] = readOffset(data[3+i*offSize:], offSize)
	}
	base := 2 + (count+1)*offSize // offsets are 1-based
	if len(data) < base+offsets[count] {
		return 0, nil, invalidf("index too short for data")
	}
	items = make([][]byte, count)
	for i := 0; i < count; i++ {
		if offsets[i] < 1 || offsets[i] > offsets[i+1] {
			return 0, nil, invalidf("bad index offset %d", offsets[i])
		}
		items[i] = data[base+offsets[i] : base+offsets[i+1]]
	}
	return base + offsets[count], items, nil
}

func readOffset(b []byte, size int) int {
	n := 0
	for _, c := range b[:size] {
		n = n<<8 | int(c)
	}
	return n
}

// SerializeCFFIndexHeader returns the count, offSize and offset array of
// an INDEX holding items. An offSize of 0 selects the smallest that fits.
// An empty INDEX is always 2 bytes.
func SerializeCFFIndexHeader(offSize int, items [][]byte) (int, []byte, error) {
	if len(items) >= 65535 {
		return 0, nil, invalidf("index too long: %d", len(items))
	}
	if len(items) == 0 {
		return 0, []byte{0, 0}, nil
	}
	offsets := make([]int, 1, len(items)+1)
	offsets[0] = 1
	for _, item := range items {
		offsets = append(offsets, offsets[len(offsets)-1]+len(item))
	}
	largest := offsets[len(offsets)-1]
	if offSize == 0 {
		switch {
		case largest < 1<<8:
			offSize = 1
		case largest < 1<<16:
			offSize = 2
		case largest < 1<<24:
			offSize = 3
		case largest < 1<<32:
			offSize = 4
		default:
			return 0, nil, invalidf("index too large: %d", largest)
		}
	} else if offSize < 0 || offSize > 4 {
		return 0, nil, invalidf("bad offSize %d", offSize)
	} else if largest>>(8*offSize) != 0 {
		return 0, nil, invalidf("index too large (%d) for offSize %d", largest, offSize)
	}

	out := make([]byte, 3, 3+len(offsets)*offSize)
	binary.BigEndian.PutUint16(out, uint16(len(items)))
	out[2] = byte(offSize)
	for _, ofs := range offsets {
		for shift := 8 * (offSize - 1); shift >= 0; shift -= 8 {
			out = append(out, byte(ofs>>shift))
		}
	}
	return offSize, out, nil
}

// CFFHeader is the fixed front of a single-font CFF program.
type CFFHeader struct {
	Major, Minor int
	HeaderSize   int
	OffSize      int

	FontName string
	TopDict  []byte

	// RestOffset is where the data after the Top DICT INDEX starts.
	RestOffset int

	// Strings and GlobalSubrs are nil unless parsed.
	Strings     [][]byte
	GlobalSubrs [][]byte
}

// ParseCFFHeader parses the header, Name INDEX, Top DICT INDEX, String
// INDEX and Global Subr INDEX of a CFF font program with exactly one font.
func ParseCFFHeader(data []byte) (*CFFHeader, error) {
	return parseCFFHeader(data, true)
}

func parseCFFHeader(data []byte, parseRest bool) (*CFFHeader, error) {
	if len(data) < 4 {
		return nil, invalidf("font program too short")
	}
	h := &CFFHeader{
		Major:      int(data[0]),
		Minor:      int(data[1]),
		HeaderSize: int(data[2]),
		OffSize:    int(data[3]),
	}
	if h.OffSize < 1 || h.OffSize > 4 {
		return nil, invalidf("bad offSize %d", h.OffSize)
	}
	if h.HeaderSize < 4 || h.HeaderSize > len(data) {
		return nil, invalidf("bad header size %d", h.HeaderSize)
	}
	end1, names, err := ParseCFFIndex(data[h.HeaderSize:])
	if err != nil {
		return nil, errors.Wrap(err, "name index")
	}
	if len(names) != 1 {
		return nil, errors.Wrapf(ErrUnsupportedCFF, "name index count %d, want 1", len(names))
	}
	if len(names[0]) == 0 {
		return nil, invalidf("empty font name")
	}
	h.FontName = string(names[0])
	end2, topDicts, err := ParseCFFIndex(data[h.HeaderSize+end1:])
	if err != nil {
		return nil, errors.Wrap(err, "top dict index")
	}
	if len(topDicts) != len(names) {
		return nil, invalidf("font count mismatch: name=%d top dict=%d", len(names), len(topDicts))
	}
	h.TopDict = topDicts[0]
	h.RestOffset = h.HeaderSize + end1 + end2
	if !parseRest {
		return h, nil
	}
	end3, strs, err := ParseCFFIndex(data[h.RestOffset:])
	if err != nil {
		return nil, errors.Wrap(err, "string index")
	}
	if _, h.GlobalSubrs, err = ParseCFFIndex(data[h.RestOffset+end3:]); err != nil {
		return nil, errors.Wrap(err, "global subr index")
	}
	h.Strings = strs
	return h, nil
}

// CFFFontNameOffset returns the offset of the first font name in a CFF
// font program.
func CFFFontNameOffset(data []byte) (int, error) {
	if len(data) < 4 {
		return 0, invalidf("font program too short")
	}
	ofs := int(data[2])
	if len(data) < ofs+3 {
		return 0, invalidf("font program too short for name index")
	}
	count := int(binary.BigEndian.Uint16(data[ofs:]))
	offSize := int(data[ofs+2])
	if count == 0 {
		return 0, invalidf("empty name index")
	}
	if offSize < 1 || offSize > 4 {
		return 0, invalidf("bad index offSize %d", offSize)
	}
	if len(data) < ofs+3+offSize {
		return 0, invalidf("font program too short for name index")
	}
	// The data starts after count+1 offsets, and offsets are 1-based.
	return ofs + 2 + (count+1)*offSize + readOffset(data[ofs+3:], offSize), nil
}

// FixFontNameInCFF returns data with the font name replaced by name. The
// Top DICT offsets are adjusted for the size change of the Name INDEX and
// the Top DICT itself.
func FixFontNameInCFF(data []byte, name string) ([]byte, error) {
	return fixFontNameInCFF(data, name, nil)
}

// movedOffsetOps returns the Top DICT operators whose last operand is an
// offset into the data after the Top DICT INDEX, which ends at rest.
// Predefined charsets (0 to 2) and encodings (0 and 1) are IDs and stay.
func movedOffsetOps(top CFFDict, rest int) ([]int, error) {
	var ops []int
	for _, op := range top.Ops() {
		operands := top[op]
		if !isOffsetOp(op) || len(operands) == 0 {
			continue
		}
		last := operands[len(operands)-1]
		if last.IsReal() {
			return nil, invalidf("real offset for operator %d", op)
		}
		if op == OpCharset && last.Int <= 2 || op == OpEncoding && last.Int <= 1 {
			continue
		}
		if last.Int < rest {
			return nil, invalidf("offset %d of operator %d points into the Top DICT", last.Int, op)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// After the first round the offsets only move by the growth of their own
// encodings, so the fix settles within four rounds.
const maxFixRounds = 4

// fixFontNameInCFF appends the offset delta of each round to deltas. The
// new Top DICT may need longer operand encodings for the moved offsets,
// which moves them again, so this iterates to a fixed point.
func fixFontNameInCFF(data []byte, name string, deltas *[]int) ([]byte, error) {
	if name == "" {
		return nil, invalidf("empty font name")
	}
	h, err := parseCFFHeader(data, false)
	if err != nil {
		return nil, err
	}
	if h.FontName == name {
		return data, nil
	}
	if len(name) == len(h.FontName) {
		ofs, err := CFFFontNameOffset(data)
		if err != nil {
			return nil, err
		}
		out := append([]byte(nil), data...)
		copy(out[ofs:], name)
		return out, nil
	}

	top, err := ParseCFFDict(h.TopDict)
	if err != nil {
		return nil, errors.Wrap(err, "top dict")
	}
	oldRest := h.RestOffset
	moved, err := movedOffsetOps(top, oldRest)
	if err != nil {
		return nil, err
	}
	shift := func(delta int) {
		for _, op := range moved {
			operands := top[op]
			operands[len(operands)-1].Int += delta
		}
	}
	estimated := oldRest + len(name) - len(h.FontName)
	shift(estimated - oldRest)
	_, nameHeader, err := SerializeCFFIndexHeader(0, [][]byte{[]byte(name)})
	if err != nil {
		return nil, err
	}
	base := h.HeaderSize + len(nameHeader) + len(name)

	var topData, topHeader []byte
	for round := 0; ; round++ {
		if round == maxFixRounds {
			return nil, invalidf("font name fix did not converge")
		}
		if deltas != nil {
			*deltas = append(*deltas, estimated-oldRest)
		}
		if topData, err = SerializeCFFDict(top); err != nil {
			return nil, err
		}
		if _, topHeader, err = SerializeCFFIndexHeader(0, [][]byte{topData}); err != nil {
			return nil, err
		}
		rest := base + len(topHeader) + len(topData)
		if rest == estimated {
			break
		}
		shift(rest - estimated)
		estimated = rest
	}

	out := make([]byte, 0, estimated+len(data)-oldRest)
	out = append(out, data[:h.HeaderSize]...)
	out = append(out, nameHeader...)
	out = append(out, name...)
	out = append(out, topHeader...)
	out = append(out, topData...)
	return append(out, data[oldRest:]...), nil
}

func (h *CFFHeader) String() string {
	return fmt.Sprintf("CFF %d.%d %q", h.Major, h.Minor, h.FontName)
}

// SIDName returns the string with the given SID.
func (h *CFFHeader) SIDName(sid int) (string, error) {
	if sid < 0 {
		return "", invalidf("negative SID %d", sid)
	}
	if sid < len(standardStrings) {
		return standardStrings[sid], nil
	}
	if i := sid - len(standardStrings); i < len(h.Strings) {
		return string(h.Strings[i]), nil
	}
	return "", invalidf("SID %d out of range", sid)
}

// CFFGlyphNames returns the glyph names of a CFF font program in glyph
// order, from its charset and CharStrings INDEX. CIDFonts are refused with
// ErrUnsupportedCFF.
func CFFGlyphNames(data []byte) ([]string, error) {
	h, err := ParseCFFHeader(data)
	if err != nil {
		return nil, err
	}
	top, err := ParseCFFDict(h.TopDict)
	if err != nil {
		return nil, errors.Wrap(err, "top dict")
	}
	if _, ok := top[EscapedOp(30)]; ok {
		return nil, errors.Wrap(ErrUnsupportedCFF, "CIDFont")
	}
	csOfs, err := offsetOperand(top, OpCharStrings, len(data))
	if err != nil {
		return nil, err
	}
	_, glyphs, err := ParseCFFIndex(data[csOfs:])
	if err != nil {
		return nil, errors.Wrap(err, "charstrings index")
	}
	n := len(glyphs)
	if n == 0 {
		return nil, nil
	}

	sids := make([]int, 1, n)
	charset := 0
	if _, ok := top[OpCharset]; ok {
		if charset, err = offsetOperand(top, OpCharset, len(data)); err != nil {
			return nil, err
		}
	}
	switch charset {
	case 0: // ISOAdobe
		for gid := 1; gid < n; gid++ {
			sids = append(sids, gid)
		}
	case 1, 2:
		return nil, errors.Wrap(ErrUnsupportedCFF, "expert charset")
	default:
		if sids, err = parseCharset(data[charset:], n); err != nil {
			return nil, err
		}
	}

	names := make([]string, n)
	for gid, sid := range sids {
		if names[gid], err = h.SIDName(sid); err != nil {
			return nil, err
		}
	}
	return names, nil
}

func offsetOperand(top CFFDict, op, limit int) (int, error) {
	operands := top[op]
	if len(operands) == 0 || operands[len(operands)-1].IsReal() {
		return 0, invalidf("missing offset for operator %d", op)
	}
	ofs := operands[len(operands)-1].Int
	if ofs < 0 || ofs >= limit {
		return 0, invalidf("offset %d of operator %d out of range", ofs, op)
	}
	return ofs, nil
}

// parseCharset returns the SIDs of glyphs 0..n-1; glyph 0 is .notdef.
func parseCharset(data []byte, n int) ([]int, error) {
	if len(data) == 0 {
		return nil, invalidf("charset truncated")
	}
	sids := make([]int, 1, n)
	format, data := data[0], data[1:]
	switch format {
	case 0:
		if len(data) < 2*(n-1) {
			return nil, invalidf("charset truncated")
		}
		for i := 0; i < n-1; i++ {
			sids = append(sids, int(binary.BigEndian.Uint16(data[2*i:])))
		}
	case 1, 2:
		size := 3
		if format == 2 {
			size = 4
		}
		for len(sids) < n {
			if len(data) < size {
				return nil, invalidf("charset truncated")
			}
			first := int(binary.BigEndian.Uint16(data))
			left := int(data[2])
			if format == 2 {
				left = int(binary.BigEndian.Uint16(data[2:]))
			}
			data = data[size:]
			for sid := first; sid <= first+left && len(sids) < n; sid++ {
				sids = append(sids, sid)
			}
		}
	default:
		return nil, invalidf("bad charset format %d", format)
	}
	return sids, nil
}
