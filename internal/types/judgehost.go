package types

// JudgehostLiveness classifies how recently a judgehost has polled.
type JudgehostLiveness string

const (
	LivenessOK     JudgehostLiveness = "ok"
	LivenessWarn   JudgehostLiveness = "warn"
	LivenessCrit   JudgehostLiveness = "crit"
	LivenessNoConn JudgehostLiveness = "noconn"
)
