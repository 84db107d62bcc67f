package compilation

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"regexp"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
	"github.com/sthenolabs/stheno/compilation/types"
	"github.com/sthenolabs/stheno/storage"
)

// minimumSolcVersion is the oldest compiler whose storage layout output this loader
// understands; the storageLayout artifact section first stabilized in 0.5.13.
var minimumSolcVersion = semver.MustParse("0.5.13")

// versionPattern extracts the bare semantic version from solc's version string, which carries
// commit and platform suffixes.
var versionPattern = regexp.MustCompile(`\d+\.\d+\.\d+`)

// Artifact is one compiled contract as loaded from a solc combined-json output file.
type Artifact struct {
	// Name is the contract name.
	Name string

	// Layout is the contract's parsed storage layout descriptor.
	Layout *storage.Layout

	// RuntimeBytecode is the deployed bytecode with its metadata trailer removed.
	RuntimeBytecode []byte

	// Metadata is the CBOR metadata embedded in the bytecode, when present.
	Metadata *types.ContractMetadata
}

// combinedJSON mirrors the subset of solc's --combined-json output the loader reads.
type combinedJSON struct {
	Version   string `json:"version"`
	Contracts map[string]struct {
		BinRuntime    string          `json:"bin-runtime"`
		StorageLayout json.RawMessage `json:"storage-layout"`
	} `json:"contracts"`
}

// LoadArtifacts reads a solc combined-json file and returns the contracts it describes,
// keyed by contract name. The compiler version recorded in the file is validated against the
// oldest supported release.
func LoadArtifacts(path string) (map[string]*Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read compilation artifact %q", path)
	}

	var combined combinedJSON
	if err = json.Unmarshal(raw, &combined); err != nil {
		return nil, errors.Wrapf(err, "malformed compilation artifact %q", path)
	}

	if err = validateCompilerVersion(combined.Version); err != nil {
		return nil, err
	}

	artifacts := make(map[string]*Artifact, len(combined.Contracts))
	for qualifiedName, contract := range combined.Contracts {
		// Combined-json keys are "file.sol:Contract".
		name := qualifiedName
		if idx := strings.LastIndex(qualifiedName, ":"); idx != -1 {
			name = qualifiedName[idx+1:]
		}

		if len(contract.StorageLayout) == 0 {
			return nil, errors.Errorf("contract %q has no storage layout; compile with --combined-json storage-layout", name)
		}
		layout, err := ParseStorageLayout(contract.StorageLayout)
		if err != nil {
			return nil, errors.Wrapf(err, "contract %q", name)
		}

		bytecode, err := hex.DecodeString(strings.TrimPrefix(contract.BinRuntime, "0x"))
		if err != nil {
			return nil, errors.Wrapf(err, "contract %q has malformed runtime bytecode", name)
		}

		artifacts[name] = &Artifact{
			Name:            name,
			Layout:          layout,
			RuntimeBytecode: types.RemoveContractMetadata(bytecode),
			Metadata:        types.ExtractContractMetadata(bytecode),
		}
	}
	return artifacts, nil
}

// validateCompilerVersion checks the artifact was produced by a supported solc release.
func validateCompilerVersion(version string) error {
	if version == "" {
		// Older toolchains omit the field; accept and let layout parsing catch real skew.
		return nil
	}
	match := versionPattern.FindString(version)
	if match == "" {
		return errors.Errorf("could not parse compiler version %q", version)
	}
	parsed, err := semver.NewVersion(match)
	if err != nil {
		return errors.Wrapf(err, "could not parse compiler version %q", version)
	}
	if parsed.LessThan(minimumSolcVersion) {
		return errors.Errorf("compiler version %s is older than the minimum supported %s", parsed, minimumSolcVersion)
	}
	return nil
}
