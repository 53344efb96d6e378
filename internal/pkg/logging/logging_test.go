package logging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func TestTxnID(t *testing.T) {
	if _, ok := TxnID(nil); ok {
		t.Error("nil context has a txn id")
	}

	ctx := WithTxnID(context.Background(), "abc-123")
	if id, ok := TxnID(ctx); !ok || id != "abc-123" {
		t.Errorf("TxnID = %q, %v", id, ok)
	}
	if got := Logger(ctx).Data["txnid"]; got != "abc-123" {
		t.Errorf("txnid field = %v", got)
	}
	if got := Appliance(ctx, "aa-bb").Data["mac"]; got != "aa-bb" {
		t.Errorf("mac field = %v", got)
	}
}

func TestConfigureFile(t *testing.T) {
	defer logrus.SetOutput(os.Stderr)
	defer logrus.SetLevel(logrus.InfoLevel)

	file := filepath.Join(t.TempDir(), "hon.log")

	cfg := viper.New()
	cfg.Set("logging.location", file)
	cfg.Set("logging.format", "json")
	cfg.Set("logging.level", "warn")

	if err := Configure(cfg); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	Logger(WithTxnID(context.Background(), "t1")).Warn("written")
	Logger(nil).Info("filtered")

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"txnid":"t1"`) || strings.Contains(string(data), "filtered") {
		t.Errorf("log file = %s", data)
	}

	cfg.Set("logging.location", "stderr")
	if err := Configure(cfg); err != nil {
		t.Fatalf("Configure: %v", err)
	}
}

func TestConfigureErrors(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)

	for name, settings := range map[string]map[string]string{
		"level":  {"logging.level": "loud"},
		"format": {"logging.format": "xml"},
		"file":   {"logging.location": filepath.Join(t.TempDir(), "missing", "hon.log")},
	} {
		cfg := viper.New()
		cfg.Set("logging.location", "stderr")
		for k, v := range settings {
			cfg.Set(k, v)
		}

		if err := Configure(cfg); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}
