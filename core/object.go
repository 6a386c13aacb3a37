package core

import (
	"bytes"
	"sort"
	"strconv"
)

// Object represents a PDF value. String returns its canonical PDF syntax.
type Object interface {
	Type() ObjectType
	String() string
}

// ObjectType represents the type of PDF object
type ObjectType int

const (
	ObjNull ObjectType = iota
	ObjBool
	ObjInt
	ObjReal
	ObjString
	ObjName
	ObjArray
	ObjDict
	ObjIndirect
	ObjRaw
)

// String returns the string representation of the object type
func (t ObjectType) String() string {
	switch t {
	case ObjNull:
		return "Null"
	case ObjBool:
		return "Bool"
	case ObjInt:
		return "Int"
	case ObjReal:
		return "Real"
	case ObjString:
		return "String"
	case ObjName:
		return "Name"
	case ObjArray:
		return "Array"
	case ObjDict:
		return "Dict"
	case ObjIndirect:
		return "IndirectRef"
	case ObjRaw:
		return "Raw"
	default:
		return "Unknown"
	}
}

// Null represents a PDF null object
type Null struct{}

func (n Null) Type() ObjectType { return ObjNull }
func (n Null) String() string   { return "null" }

// Bool represents a PDF boolean
type Bool bool

func (b Bool) Type() ObjectType { return ObjBool }
func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

// Int represents a PDF integer
type Int int64

func (i Int) Type() ObjectType { return ObjInt }
func (i Int) String() string   { return strconv.FormatInt(int64(i), 10) }

// Real represents a PDF real number. It is written in decimal notation
// without an exponent.
type Real float64

func (r Real) Type() ObjectType { return ObjReal }
func (r Real) String() string   { return FormatReal(float64(r)) }

// String represents a PDF string. The value holds the decoded bytes; the
// literal and hex forms are only serialization choices.
type String string

func (s String) Type() ObjectType { return ObjString }
func (s String) String() string   { return string(FormatString([]byte(s))) }

// Name represents a PDF name. The value is decoded (no slash, no #HH).
type Name string

func (n Name) Type() ObjectType { return ObjName }
func (n Name) String() string   { return "/" + string(EscapeName([]byte(n))) }

// Raw is an unparsed composite value (an array or a dictionary) kept as the
// exact bytes it was read from, or a number whose text Int and Real cannot
// hold exactly.
type Raw []byte

func (r Raw) Type() ObjectType { return ObjRaw }
func (r Raw) String() string   { return string(r) }

// IsArray reports whether r holds an array.
func (r Raw) IsArray() bool { return len(r) > 0 && r[0] == '[' }

// IsDict reports whether r holds a dictionary.
func (r Raw) IsDict() bool { return bytes.HasPrefix(r, []byte("<<")) }

// Array represents a PDF array
type Array []Object

func (a Array) Type() ObjectType { return ObjArray }
func (a Array) String() string {
	buf := []byte{'['}
	for _, obj := range a {
		buf = appendValue(buf, obj)
	}
	return string(append(buf, ']'))
}

// Len returns the length of the array
func (a Array) Len() int {
	return len(a)
}

// Get retrieves an element at the given index
func (a Array) Get(index int) Object {
	if index < 0 || index >= len(a) {
		return nil
	}
	return a[index]
}

// GetInt retrieves an integer at the given index
func (a Array) GetInt(index int) (Int, bool) {
	i, ok := a.Get(index).(Int)
	return i, ok
}

// GetNumber retrieves an integer or real at the given index as float64.
func (a Array) GetNumber(index int) (float64, bool) {
	return number(a.Get(index))
}

// GetName retrieves a name at the given index
func (a Array) GetName(index int) (Name, bool) {
	n, ok := a.Get(index).(Name)
	return n, ok
}

// Dict represents a PDF dictionary. Composite values read from an object
// head are stored as Raw; GetArray and GetDict parse them on demand.
type Dict map[string]Object

func (d Dict) Type() ObjectType { return ObjDict }
func (d Dict) String() string   { return string(SerializeDict(d)) }

// Get retrieves a value from the dictionary
func (d Dict) Get(key string) Object {
	return d[key]
}

// GetName retrieves a name value
func (d Dict) GetName(key string) (Name, bool) {
	name, ok := d[key].(Name)
	return name, ok
}

// GetInt retrieves an integer value
func (d Dict) GetInt(key string) (Int, bool) {
	i, ok := d[key].(Int)
	return i, ok
}

// GetNumber retrieves an integer or real value as float64.
func (d Dict) GetNumber(key string) (float64, bool) {
	return number(d[key])
}

// GetDict retrieves a dictionary value
func (d Dict) GetDict(key string) (Dict, bool) {
	switch v := d[key].(type) {
	case Dict:
		return v, true
	case Raw:
		if !v.IsDict() {
			return nil, false
		}
		dict, err := ParseDict(v)
		return dict, err == nil
	}
	return nil, false
}

// GetArray retrieves an array value
func (d Dict) GetArray(key string) (Array, bool) {
	switch v := d[key].(type) {
	case Array:
		return v, true
	case Raw:
		if !v.IsArray() {
			return nil, false
		}
		arr, err := ParseArray(v)
		return arr, err == nil
	}
	return nil, false
}

// GetString retrieves a string value
func (d Dict) GetString(key string) (String, bool) {
	s, ok := d[key].(String)
	return s, ok
}

// GetBool retrieves a boolean value
func (d Dict) GetBool(key string) (Bool, bool) {
	b, ok := d[key].(Bool)
	return b, ok
}

// GetIndirectRef retrieves an indirect reference
func (d Dict) GetIndirectRef(key string) (IndirectRef, bool) {
	ref, ok := d[key].(IndirectRef)
	return ref, ok
}

// Has checks if a key exists in the dictionary
func (d Dict) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// Set sets a value in the dictionary. A nil value deletes the key.
func (d Dict) Set(key string, value Object) {
	if value == nil {
		delete(d, key)
		return
	}
	d[key] = value
}

// Delete removes a key from the dictionary
func (d Dict) Delete(key string) {
	delete(d, key)
}

// Keys returns all keys in the dictionary in sorted order.
func (d Dict) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of the dictionary.
func (d Dict) Clone() Dict {
	c := make(Dict, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}

// IndirectRef represents an indirect object reference
type IndirectRef struct {
	Number     int
	Generation int
}

func (r IndirectRef) Type() ObjectType { return ObjIndirect }
func (r IndirectRef) String() string {
	return strconv.Itoa(r.Number) + " " + strconv.Itoa(r.Generation) + " R"
}

// SerializeDict renders d as <</K1 V1/K2 V2...>> with keys in sorted order.
// A space separates a key from its value only where the value would
// otherwise be lexed as part of the key.
func SerializeDict(d Dict) []byte {
	buf := []byte("<<")
	for _, k := range d.Keys() {
		buf = append(buf, '/')
		buf = append(buf, EscapeName([]byte(k))...)
		buf = appendValue(buf, d[k])
	}
	return append(buf, '>', '>')
}

// appendValue appends the canonical form of obj to buf, inserting a space
// when the last byte of buf would otherwise merge with obj's first token.
func appendValue(buf []byte, obj Object) []byte {
	if obj == nil {
		obj = Null{}
	}
	s := obj.String()
	if len(s) > 0 && needsSpace(buf, s[0]) {
		buf = append(buf, ' ')
	}
	return append(buf, s...)
}

// needsSpace reports whether a token starting with next must be separated
// from the bytes already in buf.
func needsSpace(buf []byte, next byte) bool {
	if len(buf) == 0 || !IsRegular(next) {
		return false
	}
	last := buf[len(buf)-1]
	return IsRegular(last) || last == '/'
}

func number(obj Object) (float64, bool) {
	switch v := obj.(type) {
	case Int:
		return float64(v), true
	case Real:
		return float64(v), true
	case Raw:
		if isInteger(v) || isReal(v) {
			f, err := strconv.ParseFloat(string(v), 64)
			return f, err == nil
		}
	}
	return 0, false
}

// Equal reports whether a and b are the same PDF value. Numbers compare by
// value, strings by bytes, dictionaries ignore key order, and Raw values
// are parsed before comparison.
func Equal(a, b Object) bool {
	a, b = expandRaw(a), expandRaw(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && x == y
	}
	if a.Type() != b.Type() {
		return false
	}
	switch av := a.(type) {
	case Array:
		bv := b.(Array)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Dict:
		bv := b.(Dict)
		if len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	case Raw:
		return bytes.Equal(av, b.(Raw))
	default:
		return a == b
	}
}

func expandRaw(obj Object) Object {
	r, ok := obj.(Raw)
	if !ok {
		return obj
	}
	v, err := ParseValueRecursive(r)
	if err != nil {
		return obj
	}
	return v
}
