package types

import "strings"

// Verdict is the outcome of judging a submission, or of running a single
// testcase. Judgehosts may report verdict strings this server has never seen,
// so code consuming verdicts must not assume this list is closed.
type Verdict string

const (
	VerdictCorrect       Verdict = "correct"
	VerdictWrongAnswer   Verdict = "wrong-answer"
	VerdictTimelimit     Verdict = "timelimit"
	VerdictRunError      Verdict = "run-error"
	VerdictCompilerError Verdict = "compiler-error"
	VerdictNoOutput      Verdict = "no-output"
	VerdictOutputLimit   Verdict = "output-limit"
	VerdictMemoryLimit   Verdict = "memory-limit"
)

// EqualsFold compares verdicts case-insensitively, the comparison used when
// matching against jury-supplied expected results.
func (v Verdict) EqualsFold(other Verdict) bool {
	return strings.EqualFold(string(v), string(other))
}
