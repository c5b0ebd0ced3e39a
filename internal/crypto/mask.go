package crypto

import "strings"

// MaskClass selects a redaction shape
type MaskClass string

const (
	MaskAccount MaskClass = "account"
	MaskName    MaskClass = "name"
	MaskGeneric MaskClass = "generic"
)

// Mask redacts value for display. The result is deterministic and lossy.
func Mask(value string, class MaskClass) string {
	if value == "" {
		return ""
	}

	runes := []rune(value)
	switch class {
	case MaskAccount:
		if len(runes) >= 4 {
			return "****-**" + string(runes[len(runes)-2:])
		}
	case MaskName:
		parts := strings.Fields(value)
		if len(parts) > 1 {
			initial := []rune(parts[1])[0]
			return parts[0] + " " + string(initial) + "****"
		}
		return string(runes[:min(2, len(runes))]) + "****"
	default:
		if len(runes) > 4 {
			return string(runes[:2]) + "***" + string(runes[len(runes)-2:])
		}
	}

	return value
}
