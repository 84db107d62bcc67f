package compilation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/sthenolabs/stheno/storage"
)

// tokenStorageLayout is a trimmed solc storageLayout section covering a scalar, a multi-slot
// struct, a nested mapping, a dynamic array, and a string.
const tokenStorageLayout = `{
	"storage": [
		{"label": "owner", "slot": "0", "type": "t_address"},
		{"label": "config", "slot": "1", "type": "t_struct(Config)"},
		{"label": "allowances", "slot": "4", "type": "t_mapping(t_address,t_mapping(t_address,t_uint256))"},
		{"label": "holders", "slot": "5", "type": "t_array(t_address)dyn"},
		{"label": "name", "slot": "6", "type": "t_string"}
	],
	"types": {
		"t_address": {"encoding": "inplace", "numberOfBytes": "20"},
		"t_uint256": {"encoding": "inplace", "numberOfBytes": "32"},
		"t_struct(Config)": {"encoding": "inplace", "numberOfBytes": "96"},
		"t_mapping(t_address,t_mapping(t_address,t_uint256))": {"encoding": "mapping", "key": "t_address", "value": "t_mapping(t_address,t_uint256)"},
		"t_mapping(t_address,t_uint256)": {"encoding": "mapping", "key": "t_address", "value": "t_uint256"},
		"t_array(t_address)dyn": {"encoding": "dynamic_array", "base": "t_address"},
		"t_string": {"encoding": "bytes"}
	}
}`

// TestParseStorageLayout verifies the solc layout schema maps onto the storage model's layout
// descriptor.
func TestParseStorageLayout(t *testing.T) {
	layout, err := ParseStorageLayout(json.RawMessage(tokenStorageLayout))
	assert.NoError(t, err)
	assert.Equal(t, []string{"owner", "config", "allowances", "holders", "name"}, layout.Names())

	owner, _ := layout.Variable("owner")
	assert.Equal(t, storage.LayoutScalar, owner.Type.Kind)
	assert.EqualValues(t, 1, owner.Type.SlotCount)
	assert.EqualValues(t, 0, owner.Slot.Uint64())

	// A 96-byte struct occupies three slots.
	config, _ := layout.Variable("config")
	assert.EqualValues(t, 3, config.Type.SlotCount)

	allowances, _ := layout.Variable("allowances")
	assert.Equal(t, storage.LayoutMapping, allowances.Type.Kind)
	assert.Equal(t, storage.LayoutMapping, allowances.Type.Value.Kind)
	assert.Equal(t, storage.LayoutScalar, allowances.Type.Value.Value.Kind)

	holders, _ := layout.Variable("holders")
	assert.Equal(t, storage.LayoutDynamicArray, holders.Type.Kind)
	assert.EqualValues(t, 1, holders.Type.Value.SlotCount)

	// Strings occupy their base slot; spilled data is derived, not declared.
	name, _ := layout.Variable("name")
	assert.Equal(t, storage.LayoutScalar, name.Type.Kind)
	assert.EqualValues(t, 1, name.Type.SlotCount)
}

// TestParseStorageLayoutErrors verifies malformed layouts are rejected with context.
func TestParseStorageLayoutErrors(t *testing.T) {
	_, err := ParseStorageLayout(json.RawMessage(`{`))
	assert.Error(t, err)

	_, err = ParseStorageLayout(json.RawMessage(`{
		"storage": [{"label": "x", "slot": "0", "type": "t_missing"}],
		"types": {}
	}`))
	assert.ErrorContains(t, err, "unknown type")

	_, err = ParseStorageLayout(json.RawMessage(`{
		"storage": [{"label": "x", "slot": "zero", "type": "t_uint256"}],
		"types": {"t_uint256": {"encoding": "inplace", "numberOfBytes": "32"}}
	}`))
	assert.ErrorContains(t, err, "malformed slot")

	_, err = ParseStorageLayout(json.RawMessage(`{
		"storage": [{"label": "x", "slot": "0", "type": "t_odd"}],
		"types": {"t_odd": {"encoding": "spiral", "numberOfBytes": "32"}}
	}`))
	assert.ErrorContains(t, err, "unsupported encoding")
}
