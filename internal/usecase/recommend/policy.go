package recommend

import "fmt"

// ResolutionPolicy decides what happens when a history entry has no catalog document.
type ResolutionPolicy string

const (
	// ResolutionStrict fails the whole request with a HistoryResolutionError.
	ResolutionStrict ResolutionPolicy = "strict"
	// ResolutionSkip logs a warning and leaves the entry out of the sum.
	ResolutionSkip ResolutionPolicy = "skip"
)

// EmptyHistoryPolicy decides what an empty history produces.
type EmptyHistoryPolicy string

const (
	// EmptyReject returns domain.ErrEmptyHistory.
	EmptyReject EmptyHistoryPolicy = "reject"
	// EmptyZero returns the zero vector and lets the pool query proceed.
	EmptyZero EmptyHistoryPolicy = "zero"
)

// ParseResolutionPolicy accepts "" (strict), "strict" or "skip".
func ParseResolutionPolicy(s string) (ResolutionPolicy, error) {
	switch p := ResolutionPolicy(s); p {
	case "":
		return ResolutionStrict, nil
	case ResolutionStrict, ResolutionSkip:
		return p, nil
	default:
		return "", fmt.Errorf("unknown resolution policy %q", s)
	}
}

// ParseEmptyHistoryPolicy accepts "" (reject), "reject" or "zero".
func ParseEmptyHistoryPolicy(s string) (EmptyHistoryPolicy, error) {
	switch p := EmptyHistoryPolicy(s); p {
	case "":
		return EmptyReject, nil
	case EmptyReject, EmptyZero:
		return p, nil
	default:
		return "", fmt.Errorf("unknown empty history policy %q", s)
	}
}
