package custom

import (
	"fmt"
	"strings"

	"github.com/cognicore/gazette/pkg/gazette/internalerr"
)

// Usage controls how stemmed forms enter the vocabulary at fit time. The
// zero value is unset and cannot be fitted.
type Usage int

const (
	UsageUnset Usage = iota
	WithStems
	WithoutStems
	WithAndWithoutStems
)

// Tag returns the value persisted for the usage.
func (u Usage) Tag() (int, error) {
	switch u {
	case WithStems:
		return 0, nil
	case WithoutStems:
		return 1, nil
	case WithAndWithoutStems:
		return 2, nil
	default:
		return 0, fmt.Errorf("%w: parser usage is not set", internalerr.ErrInvalidConfig)
	}
}

// UsageFromTag is the inverse of Tag.
func UsageFromTag(tag int) (Usage, error) {
	switch tag {
	case 0:
		return WithStems, nil
	case 1:
		return WithoutStems, nil
	case 2:
		return WithAndWithoutStems, nil
	default:
		return UsageUnset, fmt.Errorf("%w: unknown parser usage tag %d", internalerr.ErrSerialization, tag)
	}
}

// ParseUsage reads a usage name such as "with_stems" or "without-stems".
func ParseUsage(s string) (Usage, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "with_stems":
		return WithStems, nil
	case "without_stems":
		return WithoutStems, nil
	case "with_and_without_stems":
		return WithAndWithoutStems, nil
	default:
		return UsageUnset, fmt.Errorf("%w: unknown parser usage %q", internalerr.ErrInvalidConfig, s)
	}
}

func (u Usage) String() string {
	switch u {
	case WithStems:
		return "with_stems"
	case WithoutStems:
		return "without_stems"
	case WithAndWithoutStems:
		return "with_and_without_stems"
	default:
		return "unset"
	}
}
