package logger

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// Level 日志级别
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

// ParseLevel 解析日志级别
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

// entry 日志条目
type entry struct {
	Level     string                 `json:"level"`
	Timestamp string                 `json:"timestamp"`
	Message   string                 `json:"message"`
	Module    string                 `json:"module,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Logger 结构化日志
type Logger struct {
	level      Level
	module     string
	jsonOutput bool
	out        *log.Logger
}

// New 创建结构化日志
func New(level Level, module string, jsonOutput bool) *Logger {
	return NewWithWriter(level, module, jsonOutput, os.Stdout)
}

// NewWithWriter 创建输出到指定 writer 的结构化日志
func NewWithWriter(level Level, module string, jsonOutput bool, w io.Writer) *Logger {
	return &Logger{
		level:      level,
		module:     module,
		jsonOutput: jsonOutput,
		out:        log.New(w, "", 0),
	}
}

// WithModule 创建带模块名的日志
func (l *Logger) WithModule(module string) *Logger {
	return &Logger{
		level:      l.level,
		module:     module,
		jsonOutput: l.jsonOutput,
		out:        l.out,
	}
}

// Debug 调试日志
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.log(DEBUG, msg, nil, keysAndValues...)
}

// Info 信息日志
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.log(INFO, msg, nil, keysAndValues...)
}

// Warn 警告日志
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.log(WARN, msg, nil, keysAndValues...)
}

// Error 错误日志
func (l *Logger) Error(msg string, err error, keysAndValues ...interface{}) {
	l.log(ERROR, msg, err, keysAndValues...)
}

// Fatal 致命日志
func (l *Logger) Fatal(msg string, err error) {
	l.log(FATAL, msg, err)
	os.Exit(1)
}

func (l *Logger) log(level Level, msg string, err error, keysAndValues ...interface{}) {
	if level < l.level {
		return
	}

	e := &entry{
		Level:     levelNames[level],
		Timestamp: time.Now().Format(time.RFC3339),
		Message:   msg,
		Module:    l.module,
	}
	if err != nil {
		e.Error = err.Error()
	}
	if len(keysAndValues) > 0 {
		e.Fields = parseKeyValues(keysAndValues...)
	}
	l.output(e)
}

func (l *Logger) output(e *entry) {
	if l.jsonOutput {
		data, _ := json.Marshal(e)
		l.out.Println(string(data))
		return
	}

	fields := ""
	if len(e.Fields) > 0 {
		data, _ := json.Marshal(e.Fields)
		fields = " " + string(data)
	}
	errPart := ""
	if e.Error != "" {
		errPart = " error=" + e.Error
	}
	module := ""
	if e.Module != "" {
		module = " [" + e.Module + "]"
	}
	l.out.Printf("[%s] %s%s %s%s%s\n", e.Level, e.Timestamp, module, e.Message, errPart, fields)
}

// parseKeyValues 解析键值对
func parseKeyValues(keysAndValues ...interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		result[key] = keysAndValues[i+1]
	}
	return result
}

// 全局logger
var global = New(INFO, "iotbridge", false)

// SetLevel 设置日志级别
func SetLevel(level Level) {
	global.level = level
}

// SetJSONOutput 设置JSON输出
func SetJSONOutput(enabled bool) {
	global.jsonOutput = enabled
}

// WithModule 基于全局logger创建带模块名的日志
func WithModule(module string) *Logger {
	return global.WithModule(module)
}

// Debug 全局调试日志
func Debug(msg string, keysAndValues ...interface{}) {
	global.log(DEBUG, msg, nil, keysAndValues...)
}

// Info 全局信息日志
func Info(msg string, keysAndValues ...interface{}) {
	global.log(INFO, msg, nil, keysAndValues...)
}

// Warn 全局警告日志
func Warn(msg string, keysAndValues ...interface{}) {
	global.log(WARN, msg, nil, keysAndValues...)
}

// Error 全局错误日志
func Error(msg string, err error, keysAndValues ...interface{}) {
	global.log(ERROR, msg, err, keysAndValues...)
}

// Fatal 全局致命日志
func Fatal(msg string, err error) {
	global.log(FATAL, msg, err)
	os.Exit(1)
}
