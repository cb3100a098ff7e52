package logging

import (
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Field helpers for the names that come up all over the monitor
func Component(name string) Field {
	return String("component", name)
}

func Formation(id string) Field {
	return String("formation", id)
}

func Group(id int) Field {
	return Int("group", id)
}

func NodeID(id int64) Field {
	return Int64("node_id", id)
}

func NodeName(name string) Field {
	return String("node", name)
}

func Port(port int) Field {
	return Int("port", port)
}

func State(state string) Field {
	return String("state", state)
}

func GoalState(state string) Field {
	return String("goal_state", state)
}

func LSN(lsn uint64) Field {
	return Uint64("reported_lsn", lsn)
}

func Operation(op string) Field {
	return String("operation", op)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}
