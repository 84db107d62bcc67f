package compilation

import (
	"encoding/json"
	"strconv"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/sthenolabs/stheno/storage"
)

// slotBytes is the size of one storage slot in bytes, used to turn solc's byte counts into
// slot strides.
const slotBytes = 32

// storageLayoutJSON mirrors the storageLayout section of a solc artifact. The schema is owned
// by the compiler; this type only reads the fields slot derivation needs.
type storageLayoutJSON struct {
	Storage []struct {
		Label string `json:"label"`
		Slot  string `json:"slot"`
		Type  string `json:"type"`
	} `json:"storage"`
	Types map[string]storageTypeJSON `json:"types"`
}

type storageTypeJSON struct {
	Encoding      string `json:"encoding"`
	NumberOfBytes string `json:"numberOfBytes"`
	Key           string `json:"key"`
	Value         string `json:"value"`
	Base          string `json:"base"`
}

// ParseStorageLayout converts the storageLayout JSON of a compiled contract into the storage
// model's layout descriptor.
func ParseStorageLayout(raw json.RawMessage) (*storage.Layout, error) {
	var parsed storageLayoutJSON
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.Wrap(err, "malformed storage layout")
	}

	variables := make([]*storage.Variable, 0, len(parsed.Storage))
	for _, entry := range parsed.Storage {
		slot, err := uint256.FromDecimal(entry.Slot)
		if err != nil {
			return nil, errors.Wrapf(err, "storage variable %q has malformed slot %q", entry.Label, entry.Slot)
		}
		node, err := layoutNode(parsed.Types, entry.Type, entry.Label)
		if err != nil {
			return nil, err
		}
		variables = append(variables, &storage.Variable{
			Name: entry.Label,
			Slot: slot,
			Type: node,
		})
	}
	return storage.NewLayout(variables)
}

// layoutNode resolves one type reference from the artifact's type table into a layout node.
func layoutNode(typeTable map[string]storageTypeJSON, typeName string, variable string) (*storage.LayoutNode, error) {
	typeInfo, ok := typeTable[typeName]
	if !ok {
		return nil, errors.Errorf("storage variable %q references unknown type %q", variable, typeName)
	}
	switch typeInfo.Encoding {
	case "inplace":
		slotCount, err := slotCountFromBytes(typeInfo.NumberOfBytes)
		if err != nil {
			return nil, errors.Wrapf(err, "storage variable %q", variable)
		}
		return storage.ScalarNode(slotCount), nil
	case "bytes":
		// Short strings and byte arrays pack into their own slot; long ones spill into
		// hash-derived slots the same way dynamic arrays do. The length/short-data word
		// always lives at the base slot, which is all slot derivation addresses directly.
		return storage.ScalarNode(1), nil
	case "mapping":
		value, err := layoutNode(typeTable, typeInfo.Value, variable)
		if err != nil {
			return nil, err
		}
		return storage.MappingNode(value), nil
	case "dynamic_array":
		element, err := layoutNode(typeTable, typeInfo.Base, variable)
		if err != nil {
			return nil, err
		}
		return storage.DynamicArrayNode(element), nil
	}
	return nil, errors.Errorf("storage variable %q has unsupported encoding %q", variable, typeInfo.Encoding)
}

func slotCountFromBytes(numberOfBytes string) (uint64, error) {
	byteCount, err := strconv.ParseUint(numberOfBytes, 10, 64)
	if err != nil || byteCount == 0 {
		return 0, errors.Errorf("malformed numberOfBytes %q", numberOfBytes)
	}
	return (byteCount + slotBytes - 1) / slotBytes, nil
}
