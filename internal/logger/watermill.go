package logger

import (
	"github.com/ThreeDotsLabs/watermill"
)

// WatermillAdapter routes watermill's internal logging through zap
type WatermillAdapter struct {
	logger *Logger
	fields watermill.LogFields
}

// NewWatermillAdapter returns a watermill.LoggerAdapter backed by l
func NewWatermillAdapter(l *Logger) watermill.LoggerAdapter {
	return &WatermillAdapter{logger: l.With("component", "watermill")}
}

func (a *WatermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.logger.Errorw(msg, append(a.keyvals(fields), "error", err)...)
}

func (a *WatermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.logger.Infow(msg, a.keyvals(fields)...)
}

func (a *WatermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.logger.Debugw(msg, a.keyvals(fields)...)
}

// Trace is mapped to debug; watermill traces every ack otherwise
func (a *WatermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.logger.Debugw(msg, a.keyvals(fields)...)
}

func (a *WatermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillAdapter{logger: a.logger, fields: a.fields.Add(fields)}
}

func (a *WatermillAdapter) keyvals(fields watermill.LogFields) []interface{} {
	all := a.fields.Add(fields)
	kv := make([]interface{}, 0, len(all)*2)
	for k, v := range all {
		kv = append(kv, k, v)
	}
	return kv
}
