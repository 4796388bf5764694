package features

import (
	"encoding/json"
	"fmt"

	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/encoding"
	apperrors "github.com/ZanzyTHEbar/credit-risk-whatif/internal/errors"
)

// RawInputs holds the values of the form as entered: category labels and numbers
type RawInputs map[string]any

// Clone returns a shallow copy of the inputs
func (r RawInputs) Clone() RawInputs {
	out := make(RawInputs, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Entry is one named column of a Vector
type Entry struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Vector is a model-ready row whose columns follow the feature order exactly.
// The zero value is an empty vector.
type Vector struct {
	names  []string
	values []float64
}

// NewVector pairs names with values. Both slices are copied.
func NewVector(names []string, values []float64) (Vector, error) {
	if len(names) != len(values) {
		return Vector{}, fmt.Errorf("vector has %d names but %d values", len(names), len(values))
	}
	return Vector{
		names:  append([]string(nil), names...),
		values: append([]float64(nil), values...),
	}, nil
}

// Len returns the number of columns
func (v Vector) Len() int { return len(v.names) }

// Names returns the column names in order
func (v Vector) Names() []string { return append([]string(nil), v.names...) }

// Values returns the column values in order
func (v Vector) Values() []float64 { return append([]float64(nil), v.values...) }

// Index returns the column position of name, or -1
func (v Vector) Index(name string) int {
	for i, n := range v.names {
		if n == name {
			return i
		}
	}
	return -1
}

// Get returns the value stored for name
func (v Vector) Get(name string) (float64, bool) {
	i := v.Index(name)
	if i < 0 {
		return 0, false
	}
	return v.values[i], true
}

// With returns a copy of the vector with name set to value. The receiver is left untouched.
func (v Vector) With(name string, value float64) (Vector, error) {
	i := v.Index(name)
	if i < 0 {
		return Vector{}, apperrors.NewSchemaMismatchError("feature is not part of the model input", name)
	}
	out := Vector{
		names:  v.names,
		values: append([]float64(nil), v.values...),
	}
	out.values[i] = value
	return out, nil
}

// Entries returns the ordered (name, value) pairs
func (v Vector) Entries() []Entry {
	entries := make([]Entry, len(v.names))
	for i := range v.names {
		entries[i] = Entry{Name: v.names[i], Value: v.values[i]}
	}
	return entries
}

// MarshalJSON encodes the vector as an ordered list so column order survives the wire
func (v Vector) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Entries())
}

// Assemble encodes raw inputs and projects them onto order. Raw fields that are not
// part of order are ignored; fields of order missing from raw fail with a schema mismatch.
func Assemble(raw RawInputs, order []string, enc *encoding.Set) (Vector, error) {
	var missing []string
	for _, name := range order {
		if _, ok := raw[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Vector{}, apperrors.NewSchemaMismatchError("input is missing fields required by the model", missing...)
	}

	values := make([]float64, len(order))
	for i, name := range order {
		value, err := enc.Encode(name, raw[name])
		if err != nil {
			return Vector{}, err
		}
		values[i] = value
	}

	return NewVector(order, values)
}
