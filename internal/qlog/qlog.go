// Package qlog provides the leveled, structured logging used across the
// proxy, motor and cortex tiers: package-level Infoln/Warningln/Errorln
// over a global default logger, writing to stdout.
package qlog

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

type Level int32

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
	LevelDebug
)

var level int32 = int32(LevelInfo)

var std = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds)

// SetLevel adjusts the global verbosity; safe for concurrent use.
func SetLevel(l Level) { atomic.StoreInt32(&level, int32(l)) }

func enabled(l Level) bool { return l <= Level(atomic.LoadInt32(&level)) }

func line(tag string, args []interface{}) string {
	return tag + " " + fmt.Sprintln(args...)
}

func Errorln(args ...interface{}) {
	if enabled(LevelError) {
		std.Print(line("[ERROR]", args))
	}
}

func Warningln(args ...interface{}) {
	if enabled(LevelWarning) {
		std.Print(line("[WARN]", args))
	}
}

func Infoln(args ...interface{}) {
	if enabled(LevelInfo) {
		std.Print(line("[INFO]", args))
	}
}

func Debugln(args ...interface{}) {
	if enabled(LevelDebug) {
		std.Print(line("[DEBUG]", args))
	}
}

// Fields renders a set of key/value pairs for structured-ish log lines,
// e.g. qlog.Infoln("select", qlog.Fields{"exp_id": id, "arm": idx}).
type Fields map[string]interface{}

func (f Fields) String() string {
	s := ""
	for k, v := range f {
		if s != "" {
			s += " "
		}
		s += fmt.Sprintf("%s=%v", k, v)
	}
	return s
}
