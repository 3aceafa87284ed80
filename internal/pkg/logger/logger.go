package logger

import (
	"fmt"
	"io"
	"newsdigest-pipeline/internal/config"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	serviceName    = "newsdigest-pipeline"
	serviceVersion = "1.0.0"
)

type Logger struct {
	*logrus.Logger
	config config.LogConfig
}

type Fields = logrus.Fields

func New(config config.LogConfig) (*Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if err := configureOutput(log, config); err != nil {
		return nil, fmt.Errorf("failed to configure logger output: %w", err)
	}

	configureFormatter(log, config)

	log.AddHook(&StaticFieldsHook{})

	logger := &Logger{
		Logger: log,
		config: config,
	}

	logger.WithFields(Fields{
		"level":  config.Level,
		"format": config.Format,
		"output": config.Output,
	}).Info("Logger initialized successfully")

	return logger, nil
}

// NewDiscard returns a logger that writes nowhere. Used by tests.
func NewDiscard() *Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.PanicLevel)
	return &Logger{Logger: log}
}

func (l *Logger) WithFields(fields Fields) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields(fields))
}

func (l *Logger) WithRequestID(requestID string) *logrus.Entry {
	return l.Logger.WithField("request_id", requestID)
}

func (l *Logger) WithRunID(runID string) *logrus.Entry {
	return l.Logger.WithField("run_id", runID)
}

func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithField("error", err)
}

func (l *Logger) LogRequest(requestID, method, path, userAgent, clientIP string, duration time.Duration, statusCode int) {
	entry := l.WithFields(Fields{
		"request_id":  requestID,
		"method":      method,
		"path":        path,
		"user_agent":  userAgent,
		"client_ip":   clientIP,
		"duration_ms": duration.Milliseconds(),
		"status_code": statusCode,
		"type":        "http_request",
	})

	switch {
	case statusCode >= 500:
		entry.Error("HTTP Request completed with Server Error")
	case statusCode >= 400:
		entry.Warn("HTTP Request completed with Client Error")
	default:
		entry.Info("HTTP Request completed successfully")
	}
}

// LogRun records the outcome of a whole pipeline run (enrich or summarize).
func (l *Logger) LogRun(runID, kind, action string, duration time.Duration, err error) {
	fields := Fields{
		"run_id": runID,
		"kind":   kind,
		"action": action,
		"type":   "run",
	}

	if duration > 0 {
		fields["duration_ms"] = duration.Milliseconds()
	}

	entry := l.WithFields(fields)
	if err != nil {
		entry.WithError(err).Error(fmt.Sprintf("Run %s %s failed", kind, action))
		return
	}
	entry.Info(fmt.Sprintf("Run %s %s completed", kind, action))
}

func (l *Logger) LogService(service, operation string, duration time.Duration, data map[string]interface{}, err error) {
	fields := Fields{
		"service":   service,
		"operation": operation,
		"type":      "service",
	}

	if duration > 0 {
		fields["duration_ms"] = duration.Milliseconds()
	}

	for k, v := range data {
		fields[k] = v
	}

	entry := l.WithFields(fields)
	if err != nil {
		entry.WithError(err).Error(fmt.Sprintf("Service %s - Operation %s - failed", service, operation))
	} else {
		entry.Debug(fmt.Sprintf("Service %s - Operation %s - completed successfully", service, operation))
	}
}

// LogStage records one pipeline stage inside a run.
func (l *Logger) LogStage(runID, stage, action string, duration time.Duration, data map[string]interface{}, err error) {
	fields := Fields{
		"run_id": runID,
		"stage":  stage,
		"action": action,
		"type":   "stage",
	}

	if duration > 0 {
		fields["duration_ms"] = duration.Milliseconds()
	}

	for k, v := range data {
		fields[k] = v
	}

	entry := l.WithFields(fields)
	if err != nil {
		entry.WithError(err).Error(fmt.Sprintf("Stage %s: %s failed", stage, action))
	} else {
		entry.Info(fmt.Sprintf("Stage %s: %s completed", stage, action))
	}
}

// StaticFieldsHook stamps process identity on every entry.
type StaticFieldsHook struct{}

func (hook *StaticFieldsHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["service"]; !ok {
		entry.Data["service"] = serviceName
	}
	entry.Data["version"] = serviceVersion

	if hostname, err := os.Hostname(); err == nil {
		entry.Data["hostname"] = hostname
	}

	entry.Data["pid"] = os.Getpid()

	return nil
}

func (hook *StaticFieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func newFileWriter(config config.LogConfig) (io.Writer, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("file path is required when the output is '%s'", config.Output)
	}

	dir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory : %w", err)
	}

	return &lumberjack.Logger{
		Filename:   config.FilePath,
		MaxSize:    config.MaxSize,
		MaxAge:     config.MaxAge,
		MaxBackups: config.MaxBackups,
		Compress:   config.Compress,
		LocalTime:  true,
	}, nil
}

func configureOutput(log *logrus.Logger, config config.LogConfig) error {
	switch config.Output {
	case "file":
		fileWriter, err := newFileWriter(config)
		if err != nil {
			return err
		}
		log.SetOutput(fileWriter)
	case "both":
		fileWriter, err := newFileWriter(config)
		if err != nil {
			return err
		}
		log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
	default:
		log.SetOutput(os.Stdout)
	}
	return nil
}

func configureFormatter(log *logrus.Logger, config config.LogConfig) {
	if config.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
				logrus.FieldKeyFunc:  "caller",
			},
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
			ForceColors:     true,
		})
	}
	log.SetReportCaller(true)
}
