package tokens

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogue(t *testing.T) {
	reg := Default()

	assert.True(t, reg.IsValidToken("ContractId"))
	assert.True(t, reg.IsValidToken("AssetPrice"))
	assert.False(t, reg.IsValidToken("NotARealToken"))
	assert.False(t, reg.IsValidToken("contractid"))

	list := reg.ListTokens()
	require.NotEmpty(t, list)
	assert.Equal(t, "SellerName", list[0].Name)

	d, ok := reg.Lookup("ContractId")
	require.True(t, ok)
	assert.Equal(t, "contract", d.Group)
}

func TestListTokensReturnsCopy(t *testing.T) {
	reg := Default()
	list := reg.ListTokens()
	list[0].Name = "Mutated"
	assert.Equal(t, "SellerName", reg.ListTokens()[0].Name)
}

func TestParseRejectsDuplicatesAndBadNames(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"duplicate", "tokens:\n  - name: A\n  - name: A\n"},
		{"empty name", "tokens:\n  - name: \"\"\n"},
		{"spaces", "tokens:\n  - name: Seller Name\n"},
		{"leading digit", "tokens:\n  - name: 1Seller\n"},
		{"not yaml", "tokens: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidCatalogue))
		})
	}
}

func TestLoadFileDefaultsLabelAndGroups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tokens:\n  - name: Alpha\n    group: one\n  - name: Beta\n    group: two\n  - name: Gamma\n    group: one\n"), 0o644))

	reg, err := LoadFile(path)
	require.NoError(t, err)

	d, ok := reg.Lookup("Alpha")
	require.True(t, ok)
	assert.Equal(t, "Alpha", d.Label)
	assert.Equal(t, []string{"one", "two"}, reg.Groups())
}

func TestNilRegistry(t *testing.T) {
	var reg *Registry
	assert.False(t, reg.IsValidToken("ContractId"))
	assert.Empty(t, reg.ListTokens())
}
