package encoding

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/ZanzyTHEbar/credit-risk-whatif/internal/errors"
)

// LabelEncoder maps the ordered class labels of one categorical feature to integer codes.
// The code of a label is its index in Classes.
type LabelEncoder struct {
	Feature string   `json:"feature" yaml:"feature"`
	Classes []string `json:"classes" yaml:"classes"`

	index map[string]int
}

// NewLabelEncoder validates the class list and builds the reverse index
func NewLabelEncoder(feature string, classes []string) (*LabelEncoder, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("encoder for %q has no classes", feature)
	}

	index := make(map[string]int, len(classes))
	for i, class := range classes {
		if _, dup := index[class]; dup {
			return nil, fmt.Errorf("encoder for %q lists class %q twice", feature, class)
		}
		index[class] = i
	}

	return &LabelEncoder{
		Feature: feature,
		Classes: append([]string(nil), classes...),
		index:   index,
	}, nil
}

// Encode returns the integer code of label
func (e *LabelEncoder) Encode(label string) (int, error) {
	code, ok := e.index[label]
	if !ok {
		return 0, apperrors.NewUnknownCategoryError(e.Feature, label)
	}
	return code, nil
}

// Decode returns the label for code
func (e *LabelEncoder) Decode(code int) (string, error) {
	if code < 0 || code >= len(e.Classes) {
		return "", apperrors.NewUnknownCategoryError(e.Feature, strconv.Itoa(code))
	}
	return e.Classes[code], nil
}

// Set holds one encoder per categorical feature. It is read-only after construction.
type Set struct {
	encoders map[string]*LabelEncoder
}

// NewSet builds a Set from the given encoders
func NewSet(encoders ...*LabelEncoder) *Set {
	s := &Set{encoders: make(map[string]*LabelEncoder, len(encoders))}
	for _, enc := range encoders {
		s.encoders[enc.Feature] = enc
	}
	return s
}

// IsCategorical reports whether feature has an encoder
func (s *Set) IsCategorical(feature string) bool {
	if s == nil {
		return false
	}
	_, ok := s.encoders[feature]
	return ok
}

// Features returns the categorical feature names in sorted order
func (s *Set) Features() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.encoders))
	for name := range s.encoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClassesFor returns a copy of the ordered class list for feature,
// or an empty slice when the feature is not categorical.
func (s *Set) ClassesFor(feature string) []string {
	if s == nil {
		return []string{}
	}
	enc, ok := s.encoders[feature]
	if !ok {
		return []string{}
	}
	return append([]string(nil), enc.Classes...)
}

// Encode turns a raw form value into the numeric value the model expects.
// Categorical features are label-encoded; any other feature passes through as a number.
func (s *Set) Encode(feature string, value any) (float64, error) {
	if enc, ok := s.lookup(feature); ok {
		label, ok := value.(string)
		if !ok {
			label = fmt.Sprint(value)
		}
		code, err := enc.Encode(label)
		if err != nil {
			return 0, err
		}
		return float64(code), nil
	}

	return ToFloat(feature, value)
}

// Decode maps an encoded value back to its label
func (s *Set) Decode(feature string, code float64) (string, error) {
	enc, ok := s.lookup(feature)
	if !ok {
		return strconv.FormatFloat(code, 'f', -1, 64), nil
	}
	if code != math.Trunc(code) {
		return "", apperrors.NewUnknownCategoryError(feature, strconv.FormatFloat(code, 'f', -1, 64))
	}
	return enc.Decode(int(code))
}

func (s *Set) lookup(feature string) (*LabelEncoder, bool) {
	if s == nil {
		return nil, false
	}
	enc, ok := s.encoders[feature]
	return enc, ok
}

// ToFloat converts a numeric raw value. Strings are parsed so form posts work unchanged.
func ToFloat(feature string, value any) (float64, error) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, apperrors.NewValidationError(fmt.Sprintf("feature %q expects a number", feature), v)
		}
		f = parsed
	default:
		return 0, apperrors.NewValidationError(fmt.Sprintf("feature %q expects a number", feature), value)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, apperrors.NewValidationError(fmt.Sprintf("feature %q must be finite", feature), value)
	}
	return f, nil
}
