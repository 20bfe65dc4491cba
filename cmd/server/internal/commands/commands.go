package commands

// Globals are passed to every command's Run method.
type Globals struct {
	Version string
}
