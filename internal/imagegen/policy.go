package imagegen

// Save modes accepted by SavePolicy.
const (
	SaveAuto   = "auto"
	SaveAlways = "always"
	SaveNever  = "never"
)

// SavePolicy turns a configured save mode into a SaveDecision. In auto mode
// onLocal is asked on every submission.
func SavePolicy(mode string, onLocal func() bool) SaveDecision {
	switch mode {
	case SaveAlways:
		return func() bool { return true }
	case SaveNever:
		return func() bool { return false }
	default:
		if onLocal == nil {
			return func() bool { return false }
		}
		return onLocal
	}
}
