package diag

// Severity defines the importance of a diagnostic.
type Severity uint8

const (
	// SevInfo is for degraded outcomes that are expected (missing debug info).
	SevInfo Severity = iota
	// SevWarning is for call sites left uninstrumented.
	SevWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "info"
	case SevWarning:
		return "warning"
	case SevError:
		return "error"
	}
	return "unknown"
}
