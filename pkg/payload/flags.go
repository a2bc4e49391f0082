package payload

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"
)

// TurntableFlags selects between a single still and a stepped turntable
type TurntableFlags struct {
	Is360 bool
	Steps int // Only meaningful when Is360 is set
}

// FindFlags returns the argument carrying the turntable flags, if any
func FindFlags(args []string) (string, bool) {
	for i := len(args) - 1; i >= 0; i-- {
		if strings.Contains(args[i], "is360=") {
			return args[i], true
		}
	}
	return "", false
}

// ParseTurntableFlags parses a space-delimited "is360=<0|1> steps=<n>" argument
func ParseTurntableFlags(arg string) (TurntableFlags, error) {
	var flags TurntableFlags

	words, err := shellwords.Parse(arg)
	if err != nil {
		return flags, &ArgumentError{Arg: shorten(arg), Reason: err.Error()}
	}

	seen := map[string]bool{}
	for _, word := range words {
		key, value, ok := strings.Cut(word, "=")
		if !ok {
			return flags, &ArgumentError{Arg: word, Reason: "expected key=value"}
		}
		switch key {
		case "is360":
			flags.Is360, err = strconv.ParseBool(value)
			if err != nil {
				return flags, &ArgumentError{Arg: word, Reason: "is360 must be 0 or 1"}
			}
		case "steps":
			flags.Steps, err = strconv.Atoi(value)
			if err != nil {
				return flags, &ArgumentError{Arg: word, Reason: "steps must be an integer"}
			}
		default:
			return flags, &ArgumentError{Arg: word, Reason: fmt.Sprintf("unknown flag %q", key)}
		}
		seen[key] = true
	}

	if !seen["is360"] {
		return flags, &ArgumentError{Arg: shorten(arg), Reason: "missing is360"}
	}
	if flags.Is360 && flags.Steps <= 0 {
		return flags, &ArgumentError{Arg: shorten(arg), Reason: "steps must be positive for a 360 render"}
	}
	return flags, nil
}
