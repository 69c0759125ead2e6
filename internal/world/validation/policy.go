package validation

const DefaultScaleWarnThreshold = 1000

type Policy struct {
	// ScaleWarnThreshold raises a warning for any scale component above it.
	// Zero or negative disables the check.
	ScaleWarnThreshold float64
}

func DefaultPolicy() Policy {
	return Policy{ScaleWarnThreshold: DefaultScaleWarnThreshold}
}
