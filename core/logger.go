package core

type (
	// Logger logs a message along with any number of args.
	// expected args: error, map[string]interface{}, Actor
	Logger interface {
		Debug(msg string, args ...interface{})
		Info(msg string, args ...interface{})
		Warn(msg string, args ...interface{})
		Error(msg string, args ...interface{})
		Fatal(msg string, args ...interface{})
	}

	// Actor identifies whoever issued the request being logged.
	Actor struct {
		ID    string
		Name  string
		Email string
	}
)
