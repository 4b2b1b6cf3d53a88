package logger

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	colorReset  = "\x1b[0m"
	colorBold   = "\x1b[1m"
	colorGray   = "\x1b[90m"
	colorAqua   = "\x1b[36m"
	colorPurple = "\x1b[35m"
	colorYellow = "\x1b[33m"
	colorRed    = "\x1b[31m"
)

// Fields rendered first and highlighted: they correlate one connector round
var idFields = []string{FieldTicket, FieldJobID, "client_id"}

var bufferPool = buffer.NewPool()

// minimalEncoder is a compact console encoder:
//
//	13:04:35  WARN  s.qbwc  Authentication rejected  username=admin
//
// Every field is printed; IDs come first.
type minimalEncoder struct {
	zapcore.ObjectEncoder
	context *zapcore.MapObjectEncoder
	color   bool
}

func newMinimalEncoder(color bool) *minimalEncoder {
	ctx := zapcore.NewMapObjectEncoder()
	return &minimalEncoder{ObjectEncoder: ctx, context: ctx, color: color}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	clone := newMinimalEncoder(enc.color)
	for k, v := range enc.context.Fields {
		clone.context.Fields[k] = v
	}
	return clone
}

func (enc *minimalEncoder) paint(color, s string) string {
	if !enc.color || s == "" {
		return s
	}
	return color + s + colorReset
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line := bufferPool.Get()

	line.AppendString(enc.paint(colorGray, ent.Time.Format("15:04:05")))

	// Info is the normal case and stays quiet
	if ent.Level != zapcore.InfoLevel {
		line.AppendString("  ")
		line.AppendString(enc.levelString(ent.Level))
	}

	if ent.LoggerName != "" {
		line.AppendString("  ")
		line.AppendString(enc.paint(colorAqua, abbreviateName(ent.LoggerName)))
	}

	line.AppendString("  ")
	line.AppendString(ent.Message)

	if rendered := enc.renderFields(fields); rendered != "" {
		line.AppendString("  ")
		line.AppendString(rendered)
	}

	line.AppendString("\n")
	return line, nil
}

func (enc *minimalEncoder) levelString(level zapcore.Level) string {
	switch level {
	case zapcore.DebugLevel:
		return enc.paint(colorGray, "DEBUG")
	case zapcore.WarnLevel:
		return enc.paint(colorBold+colorYellow, "WARN")
	default:
		return enc.paint(colorBold+colorRed, level.CapitalString())
	}
}

// renderFields merges logger context with call fields and prints key=value pairs
func (enc *minimalEncoder) renderFields(fields []zapcore.Field) string {
	all := zapcore.NewMapObjectEncoder()
	for k, v := range enc.context.Fields {
		all.Fields[k] = v
	}
	for _, f := range fields {
		f.AddTo(all)
	}
	if len(all.Fields) == 0 {
		return ""
	}

	var parts []string
	for _, key := range idFields {
		if v, ok := all.Fields[key]; ok {
			parts = append(parts, key+"="+enc.paint(colorPurple, fmt.Sprint(v)))
			delete(all.Fields, key)
		}
	}

	keys := make([]string, 0, len(all.Fields))
	for k := range all.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+fmt.Sprint(all.Fields[k]))
	}
	return strings.Join(parts, "  ")
}

// abbreviateName shortens nested logger names: server.qbwc -> s.qbwc
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 && parts[0] != "" {
		return string(parts[0][0]) + "." + strings.Join(parts[1:], ".")
	}
	return name
}
