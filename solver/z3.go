package solver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sthenolabs/stheno/logging"
)

// DefaultQueryTimeout bounds a single solver query when the caller's context carries no
// deadline of its own.
const DefaultQueryTimeout = 10 * time.Second

// Z3Solver drives a z3 binary as a one-shot subprocess per query, feeding it an SMT-LIB2
// script file and reading the answer from standard output. Each query is an independent
// process, so the solver is trivially safe for concurrent use and an abandoned exploration
// subtree only ever kills its own processes.
type Z3Solver struct {
	// binaryPath is the z3 executable, resolved from PATH when left as the plain name.
	binaryPath string

	// scratchDir receives the temporary script files.
	scratchDir string

	logger *logging.Logger
}

// NewZ3Solver returns a solver backed by the given z3 binary. An empty path selects "z3" from
// PATH. The solver becomes unavailable (ErrUnavailable) only when a query actually fails to
// launch the process.
func NewZ3Solver(binaryPath string) *Z3Solver {
	if binaryPath == "" {
		binaryPath = "z3"
	}
	return &Z3Solver{
		binaryPath: binaryPath,
		scratchDir: os.TempDir(),
		logger:     logging.GlobalLogger.NewSubLogger("module", "solver"),
	}
}

// CheckSat implements Solver by running one z3 process for the query.
func (s *Z3Solver) CheckSat(ctx context.Context, query Query) (*CheckResult, error) {
	script, err := encodeQuery(query)
	if err != nil {
		return nil, err
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultQueryTimeout)
		defer cancel()
		deadline, _ = ctx.Deadline()
	}
	softTimeout := time.Until(deadline)
	if softTimeout <= 0 {
		return &CheckResult{Result: ResultUnknown, TimedOut: true}, nil
	}

	scriptPath := filepath.Join(s.scratchDir, fmt.Sprintf("stheno-%s.smt2", uuid.New().String()))
	if err = os.WriteFile(scriptPath, []byte(script), 0600); err != nil {
		return nil, errors.WithStack(err)
	}
	defer os.Remove(scriptPath)

	// -t takes the soft per-query timeout in milliseconds; on expiry z3 answers "unknown"
	// instead of being killed, which lets us distinguish timeouts from crashes.
	cmd := exec.CommandContext(ctx, s.binaryPath, fmt.Sprintf("-t:%d", softTimeout.Milliseconds()), "-smt2", scriptPath)
	output, runErr := cmd.Output()

	if ctx.Err() != nil {
		// The context expired or was cancelled mid-query; the process was killed.
		return &CheckResult{Result: ResultUnknown, TimedOut: true}, nil
	}
	if runErr != nil {
		if _, statOK := runErr.(*exec.ExitError); !statOK {
			// The process never ran (missing binary, exec failure).
			return nil, errors.Wrapf(ErrUnavailable, "failed to execute %q: %v", s.binaryPath, runErr)
		}
		// z3 exits non-zero on script errors but still prints a diagnostic; fall through and
		// let the output parse decide.
	}

	result, parseErr := s.parseOutput(string(output), query)
	if parseErr != nil {
		return nil, parseErr
	}
	s.logger.Trace("solver query answered", logging.StructuredLogInfo{"result": result.Result.String(), "timedOut": result.TimedOut})
	return result, nil
}

// parseOutput interprets z3's textual answer.
func (s *Z3Solver) parseOutput(output string, query Query) (*CheckResult, error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, errors.Wrap(ErrUnavailable, "solver produced no output")
	}
	switch strings.TrimSpace(lines[0]) {
	case "unsat":
		return &CheckResult{Result: ResultUnsat}, nil
	case "unknown", "timeout":
		return &CheckResult{Result: ResultUnknown, TimedOut: true}, nil
	case "sat":
		result := &CheckResult{Result: ResultSat}
		if len(query.ValueNames) > 0 {
			values, err := parseModelValues(strings.Join(lines[1:], "\n"))
			if err != nil {
				return nil, err
			}
			result.Values = values
		}
		return result, nil
	}
	return nil, errors.Errorf("unexpected solver output: %q", lines[0])
}
