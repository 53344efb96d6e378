package logging

import (
	"context"
	"io"
	"os"
	"path"
	"sync"

	stdlog "log"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

/*
 *  Process wide logger for the CLI, the control API and the push listener
 */

type ctxKey int

const (
	txnIDKey ctxKey = iota
)

// WithTxnID tags ctx with the ID of the request or push message it serves
func WithTxnID(ctx context.Context, txnID string) context.Context {
	return context.WithValue(ctx, txnIDKey, txnID)
}

// TxnID returns the ID stored by WithTxnID.  ctx may be nil.
func TxnID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	txnID, ok := ctx.Value(txnIDKey).(string)
	return txnID, ok
}

var (
	mu         sync.RWMutex
	base       *logrus.Entry
	logFile    *os.File
	instanceID = uuid.New().String()
)

func init() {
	viper.SetDefault("logging.location", "stderr")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.level", "info")

	base = logrus.WithFields(processFields())
}

func processFields() logrus.Fields {
	return logrus.Fields{
		"pid":      os.Getpid(),
		"exe":      path.Base(os.Args[0]),
		"instance": instanceID,
	}
}

// Logger returns the process logger, carrying the txn id of ctx if any
func Logger(ctx context.Context) *logrus.Entry {
	mu.RLock()
	entry := base
	mu.RUnlock()

	if txnID, ok := TxnID(ctx); ok {
		return entry.WithField("txnid", txnID)
	}
	return entry
}

// Appliance returns the logger for messages about one appliance
func Appliance(ctx context.Context, mac string) *logrus.Entry {
	return Logger(ctx).WithField("mac", mac)
}

// openOutput resolves logging.location: stdout, stderr or a file that is
// appended to
func openOutput(location string) (io.Writer, *os.File, error) {
	switch location {
	case "stdout":
		return os.Stdout, nil, nil
	case "", "stderr":
		return os.Stderr, nil, nil
	}

	file, err := os.OpenFile(location, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening log file %s", location)
	}
	return file, file, nil
}

func formatter(format string) (logrus.Formatter, error) {
	switch format {
	case "", "text":
		return &logrus.TextFormatter{}, nil
	case "json":
		return &logrus.JSONFormatter{}, nil
	}
	return nil, errors.Errorf("bad log format: [%s]", format)
}

// Configure applies the logging.* settings.  A level given on the command
// line as --debug wins over logging.level.
func Configure(cfg *viper.Viper) error {
	out, file, err := openOutput(cfg.GetString("logging.location"))
	if err != nil {
		return err
	}

	f, err := formatter(cfg.GetString("logging.format"))
	if err != nil {
		return err
	}

	if !logrus.IsLevelEnabled(logrus.DebugLevel) {
		level := cfg.GetString("logging.level")
		val, err := logrus.ParseLevel(level)
		if err != nil {
			return errors.Errorf("bad log level: [%s]", level)
		}
		logrus.SetLevel(val)
	}

	logrus.SetOutput(out)
	logrus.SetFormatter(f)

	mu.Lock()
	if logFile != nil && logFile != file {
		logFile.Close()
	}
	logFile = file
	base = logrus.WithFields(processFields())
	mu.Unlock()

	// library code logging through the log package ends up at debug level
	stdlog.SetOutput(Logger(nil).WriterLevel(logrus.DebugLevel))

	return nil
}
