package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fibgame/fibs/internal/setup/config"
	"github.com/fibgame/fibs/internal/setup/telemetry/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceType represents the type of service being initialized.
type ServiceType int

const (
	ServiceREST ServiceType = iota
	ServiceWorker
	ServiceDB
)

// String returns the component name of the service type.
func (s ServiceType) String() string {
	switch s {
	case ServiceREST:
		return "rest"
	case ServiceWorker:
		return "worker"
	case ServiceDB:
		return "db"
	default:
		return "unknown"
	}
}

// sessionLayout names session directories so they sort by start time.
const sessionLayout = "2006-01-02_15-04-05"

// Manager creates the loggers of one program run. Every run writes into its
// own timestamped session directory and only the newest sessions are kept.
type Manager struct {
	instanceID    string
	componentName string
	logDir        string
	sessionDir    string
	level         zapcore.Level
	maxLogsToKeep int
	maxLogLines   int
	forwardErrors bool
	now           func() time.Time
	files         []*logger.Rotator
}

// NewManager creates a log manager. Workers pass their type and ID so each
// worker process gets a distinct component name.
func NewManager(
	serviceType ServiceType, logDir string, debugCfg *config.Debug, forwardErrors bool, workerType, workerID string,
) (*Manager, error) {
	level := zapcore.InfoLevel
	if debugCfg.LogLevel != "" {
		parsed, err := zapcore.ParseLevel(debugCfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		level = parsed
	}

	componentName := serviceType.String()
	if serviceType == ServiceWorker && workerType != "" {
		componentName = workerType + "_worker"
		if workerID != "" {
			componentName += "_" + workerID
		}
	}

	return &Manager{
		instanceID:    uuid.New().String(),
		componentName: componentName,
		logDir:        logDir,
		level:         level,
		maxLogsToKeep: debugCfg.MaxLogsToKeep,
		maxLogLines:   debugCfg.MaxLogLines,
		forwardErrors: forwardErrors,
		now:           time.Now,
	}, nil
}

// GetInstanceID returns the unique identifier of this program run.
func (lm *Manager) GetInstanceID() string {
	return lm.instanceID
}

// GetComponentName returns the component name used for log attribution.
func (lm *Manager) GetComponentName() string {
	return lm.componentName
}

// GetCurrentSessionDir returns the session directory, creating it if needed.
func (lm *Manager) GetCurrentSessionDir() (string, error) {
	if lm.sessionDir != "" {
		return lm.sessionDir, nil
	}

	if err := os.MkdirAll(lm.logDir, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create logs directory: %w", err)
	}

	if err := lm.rotateLogSessions(); err != nil {
		return "", fmt.Errorf("failed to rotate log sessions: %w", err)
	}

	dir := filepath.Join(lm.logDir, lm.now().Format(sessionLayout)+"_"+lm.componentName)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}

	lm.sessionDir = dir
	return dir, nil
}

// GetLoggers returns the main application logger and the database logger.
func (lm *Manager) GetLoggers() (*zap.Logger, *zap.Logger, error) {
	mainLogger, err := lm.GetLogger("main")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize main logger: %w", err)
	}

	dbLogger, err := lm.GetLogger("database")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database logger: %w", err)
	}

	return mainLogger, dbLogger, nil
}

// GetLogger returns a logger writing to <name>.log in the session directory.
func (lm *Manager) GetLogger(name string) (*zap.Logger, error) {
	dir, err := lm.GetCurrentSessionDir()
	if err != nil {
		return nil, err
	}

	rotator, err := logger.Open(filepath.Join(dir, name+".log"), lm.maxLogLines)
	if err != nil {
		return nil, err
	}
	lm.files = append(lm.files, rotator)

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), rotator, lm.level),
	}
	if lm.forwardErrors {
		cores = append(cores, NewCore())
	}

	return zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("component", lm.componentName), zap.String("instanceID", lm.instanceID)),
	), nil
}

// Close closes every log file opened by the manager.
func (lm *Manager) Close() {
	for _, file := range lm.files {
		_ = file.Close()
	}
	lm.files = nil
}

// rotateLogSessions removes the oldest sessions so that a new one can be
// created without exceeding maxLogsToKeep.
func (lm *Manager) rotateLogSessions() error {
	if lm.maxLogsToKeep <= 0 {
		return nil
	}

	sessions, err := filepath.Glob(filepath.Join(lm.logDir, "*"))
	if err != nil {
		return err
	}

	// Leave room for the session about to be created
	excess := len(sessions) - lm.maxLogsToKeep + 1
	if excess <= 0 {
		return nil
	}

	modTimes := make(map[string]time.Time, len(sessions))
	for _, session := range sessions {
		info, err := os.Stat(session)
		if err != nil {
			return err
		}
		modTimes[session] = info.ModTime()
	}

	slices.SortFunc(sessions, func(a, b string) int {
		if c := modTimes[a].Compare(modTimes[b]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})

	for _, session := range sessions[:excess] {
		if err := os.RemoveAll(session); err != nil {
			return err
		}
	}

	return nil
}
