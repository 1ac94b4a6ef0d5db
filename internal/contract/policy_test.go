package contract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowedOptionCount(t *testing.T) {
	assert.Equal(t, CountRange{Min: 1, Max: 1}, AllowedOptionCount(VariantFixed))
	assert.Equal(t, CountRange{Min: 1, Max: 1}, AllowedOptionCount(VariantOptional))
	assert.Equal(t, CountRange{Min: 1}, AllowedOptionCount(VariantDynamic))

	assert.True(t, AllowedOptionCount(VariantDynamic).Allows(40))
	assert.False(t, AllowedOptionCount(VariantDynamic).Allows(0))
	assert.False(t, AllowedOptionCount(VariantFixed).Allows(2))
	assert.Equal(t, "exactly 1", AllowedOptionCount(VariantFixed).String())
	assert.Equal(t, ">= 1", AllowedOptionCount(VariantDynamic).String())
}

func TestDisplayLabel(t *testing.T) {
	tests := map[int]string{
		-1:  "",
		0:   "A",
		1:   "B",
		25:  "Z",
		26:  "AA",
		27:  "AB",
		51:  "AZ",
		52:  "BA",
		701: "ZZ",
		702: "AAA",
	}
	for index, want := range tests {
		assert.Equal(t, want, DisplayLabel(index), index)
	}

	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		label := DisplayLabel(i)
		assert.False(t, seen[label], label)
		seen[label] = true
	}
}

func TestValidateMutexSelection(t *testing.T) {
	mutex := Option{MutexSubOptions: true, SubOptions: make([]SubOption, 2)}
	open := Option{SubOptions: make([]SubOption, 2)}

	assert.True(t, errors.Is(ValidateMutexSelection(mutex, []int{0, 1}), ErrMutexViolation))
	assert.NoError(t, ValidateMutexSelection(mutex, []int{0}))
	assert.NoError(t, ValidateMutexSelection(mutex, []int{1, 1}))
	assert.NoError(t, ValidateMutexSelection(mutex, nil))
	assert.NoError(t, ValidateMutexSelection(open, []int{0, 1}))
	assert.True(t, errors.Is(ValidateMutexSelection(open, []int{2}), ErrNodeNotFound))
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("dynamic")
	assert.NoError(t, err)
	assert.Equal(t, VariantDynamic, v)

	_, err = ParseVariant("sometimes")
	assert.True(t, errors.Is(err, ErrInvalidTree))
}
