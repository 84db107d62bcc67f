package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor"
	"github.com/pkg/errors"
	"github.com/sthenolabs/stheno/execution"
	"github.com/sthenolabs/stheno/logging"
	"github.com/sthenolabs/stheno/utils"
)

// WriteRecord is one storage write on a violating path, rendered for reporting and replay.
type WriteRecord struct {
	// Contract is the written contract's address.
	Contract string `cbor:"contract"`

	// Slot is the textual slot expression the write addressed.
	Slot string `cbor:"slot"`

	// Value is the textual value expression written.
	Value string `cbor:"value"`

	// Sequence is the write's position in the journal.
	Sequence uint64 `cbor:"sequence"`
}

// Counterexample captures everything needed to reproduce one discovered violation: the path
// condition that reaches it, the full storage write history along the way, and a concrete
// satisfying assignment for every symbolic variable.
type Counterexample struct {
	// PathID identifies the violating exploration path.
	PathID string `cbor:"pathId"`

	// PathCondition is the textual conjunction of branch constraints reaching the violation.
	PathCondition string `cbor:"pathCondition"`

	// Model maps each symbolic variable to its concrete hex value in the witnessing model.
	Model map[string]string `cbor:"model"`

	// Writes is the ordered storage write history across every touched contract.
	Writes []WriteRecord `cbor:"writes"`
}

// NewCounterexample builds a counterexample from a violating path and its assertion result.
func NewCounterexample(path *execution.Path, result *execution.AssertionResult) (*Counterexample, error) {
	pathCondition, err := path.Condition()
	if err != nil {
		return nil, err
	}

	model := make(map[string]string, len(result.Model))
	for name, value := range result.Model {
		model[name] = value.Hex()
	}

	var writes []WriteRecord
	contracts := path.Contracts()
	// Contract iteration order is arbitrary; gather first, then order by sequence number
	// inside each contract's already-ordered history.
	for _, contract := range contracts {
		for _, entry := range path.WriteHistory(contract) {
			writes = append(writes, WriteRecord{
				Contract: entry.Contract.String(),
				Slot:     entry.Slot.String(),
				Value:    entry.Value.String(),
				Sequence: entry.Sequence,
			})
		}
	}

	return &Counterexample{
		PathID:        path.ID().String(),
		PathCondition: pathCondition.String(),
		Model:         model,
		Writes:        writes,
	}, nil
}

// ModelString renders the model assignment compactly for console output, with variables in
// deterministic order.
func (c *Counterexample) ModelString() string {
	out := ""
	for i, name := range utils.SortedKeys(c.Model) {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s = %s", name, c.Model[name])
	}
	return "[" + out + "]"
}

// Reporter persists counterexamples into a report directory, one CBOR file per violating
// path, so external tooling can replay them.
type Reporter struct {
	directory string
	logger    *logging.Logger
}

// NewReporter returns a reporter writing into the given directory, creating it if needed.
func NewReporter(directory string) (*Reporter, error) {
	if err := utils.MakeDirectory(directory); err != nil {
		return nil, err
	}
	return &Reporter{
		directory: directory,
		logger:    logging.GlobalLogger.NewSubLogger("module", "reporting"),
	}, nil
}

// Save writes the counterexample to disk and returns the file path.
func (r *Reporter) Save(c *Counterexample) (string, error) {
	encoded, err := cbor.Marshal(c, cbor.EncOptions{Canonical: true})
	if err != nil {
		return "", errors.Wrap(err, "could not encode counterexample")
	}

	fileName := fmt.Sprintf("%s.cbor", c.PathID)
	file, err := utils.CreateFile(r.directory, fileName)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err = file.Write(encoded); err != nil {
		return "", errors.WithStack(err)
	}

	filePath := filepath.Join(r.directory, fileName)
	r.logger.Info("counterexample saved to ", filePath)
	return filePath, nil
}

// LoadCounterexample reads a previously saved counterexample back from disk.
func LoadCounterexample(path string) (*Counterexample, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var c Counterexample
	if err = cbor.Unmarshal(raw, &c); err != nil {
		return nil, errors.Wrap(err, "could not decode counterexample")
	}
	return &c, nil
}
