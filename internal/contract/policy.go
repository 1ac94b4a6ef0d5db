package contract

import "fmt"

// CountRange is an inclusive bound on a number of children. Max 0 means unbounded.
type CountRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Allows reports whether n children fit the range.
func (r CountRange) Allows(n int) bool {
	return n >= r.Min && (r.Max == 0 || n <= r.Max)
}

func (r CountRange) String() string {
	if r.Max == 0 {
		return fmt.Sprintf(">= %d", r.Min)
	}
	if r.Min == r.Max {
		return fmt.Sprintf("exactly %d", r.Min)
	}
	return fmt.Sprintf("%d..%d", r.Min, r.Max)
}

// AllowedOptionCount: FIXED and OPTIONAL sections hold exactly one option,
// DYNAMIC sections at least one.
func AllowedOptionCount(v Variant) CountRange {
	if v == VariantDynamic {
		return CountRange{Min: 1}
	}
	return CountRange{Min: 1, Max: 1}
}

// AllowedSubOptionCount is the same for every variant.
func AllowedSubOptionCount() CountRange {
	return CountRange{Min: 0}
}

// DisplayLabel maps a zero-based index to A, B, ... Z, AA, AB, ... ZZ, AAA.
// Negative indexes have no label.
func DisplayLabel(index int) string {
	if index < 0 {
		return ""
	}
	var buf []byte
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		buf = append(buf, byte('A'+(n-1)%26))
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// ValidateMutexSelection checks a set of selected sub-option indexes against
// the option's policy. Repeated indexes count once.
func ValidateMutexSelection(opt Option, selected []int) error {
	distinct := make(map[int]struct{}, len(selected))
	for _, idx := range selected {
		if idx < 0 || idx >= len(opt.SubOptions) {
			return fmt.Errorf("%w: sub-option %d of %d", ErrNodeNotFound, idx, len(opt.SubOptions))
		}
		distinct[idx] = struct{}{}
	}
	if opt.MutexSubOptions && len(distinct) > 1 {
		return fmt.Errorf("%w: %d selected", ErrMutexViolation, len(distinct))
	}
	return nil
}
