package logger

// nopLogger discards all entries. Used in tests and as a safe default.
type nopLogger struct{}

// NewNop returns a logger that discards everything.
func NewNop() Logger { return &nopLogger{} }

func (n *nopLogger) Debug(string, ...Field) {}
func (n *nopLogger) Info(string, ...Field)  {}
func (n *nopLogger) Warn(string, ...Field)  {}
func (n *nopLogger) Error(string, ...Field) {}

func (n *nopLogger) With(...Field) Logger { return n }
func (n *nopLogger) Sync() error          { return nil }
