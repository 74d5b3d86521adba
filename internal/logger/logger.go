package logger

import (
	"go.uber.org/zap"
)

// New builds the service logger. Development mode uses the human-readable
// console encoder, everything else gets production JSON output.
func New(dev bool) (*zap.SugaredLogger, error) {
	var l *zap.Logger
	var err error
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
