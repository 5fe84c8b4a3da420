package core

// Logger is any leveled logger.
// args may hold errors, extra data (map[string]interface{}) or the Participant concerned.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Participant identifies the person an event is about.
type Participant struct {
	ID   string
	Name string
}
