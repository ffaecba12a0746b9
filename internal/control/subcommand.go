package control

import "fmt"

// Subcommand is the closed set of operations of the plugin control command.
type Subcommand int

// The five control operations.
const (
	SubcommandStart Subcommand = iota
	SubcommandStop
	SubcommandStartDir
	SubcommandRescan
	SubcommandList
)

// String returns the wire token of the subcommand.
func (s Subcommand) String() string {
	switch s {
	case SubcommandStart:
		return "start"
	case SubcommandStop:
		return "stop"
	case SubcommandStartDir:
		return "startdir"
	case SubcommandRescan:
		return "rescan"
	case SubcommandList:
		return "list"
	}

	return "unknown"
}

// ParseSubcommand maps a wire token to its Subcommand.
func ParseSubcommand(token string) (Subcommand, error) {
	switch token {
	case "start":
		return SubcommandStart, nil
	case "stop":
		return SubcommandStop, nil
	case "startdir":
		return SubcommandStartDir, nil
	case "rescan":
		return SubcommandRescan, nil
	case "list":
		return SubcommandList, nil
	}

	return 0, fmt.Errorf("unknown subcommand %q, expected start, stop, startdir, rescan or list", token)
}

// TargetRequired reports whether the subcommand carries an argument.
func (s Subcommand) TargetRequired() bool {
	switch s {
	case SubcommandStart, SubcommandStop, SubcommandStartDir:
		return true
	case SubcommandRescan, SubcommandList:
		return false
	}

	return false
}
