package iocli

//go:generate moq -out io_mock.go . IO

// IO is the terminal surface of the CLI
type IO interface {
	Println(a ...any)
	Printf(format string, a ...any)
	ReadInput(prompt string) (string, error)
	ReadPassword(prompt string) (string, error)
	// ReadAll reads the remaining input, e.g. a message piped on stdin
	ReadAll() (string, error)
	// IsInteractive reports whether input comes from a terminal
	IsInteractive() bool
	Write(p []byte) (n int, err error)
}
