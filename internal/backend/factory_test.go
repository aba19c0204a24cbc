package backend

import (
	"context"
	"path/filepath"
	"testing"

	"cashbook/internal/config"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil, ""); err == nil {
		t.Fatal("expected error for nil config")
	}

	cfg := &config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db", AMQPURL: "amqp://h/", AMQPExchange: "cashbook", AMQPQueue: "durable"}
	bc, err := FromAppConfig(cfg, "")
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if bc.Type != SQLiteBackend || bc.AMQPQueue != "" || bc.AMQPExchange != "cashbook" {
		t.Fatalf("unexpected backend config %+v", bc)
	}

	cfg.DataBackend = "sheets"
	if _, err := FromAppConfig(cfg, ""); err == nil {
		t.Fatal("expected error for unsupported backend")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "a.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"amqp without exchange", Config{Type: MemoryBackend, AMQPURL: "amqp://h/"}, true},
		{"unknown", Config{Type: "postgres"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateMemoryBackend(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	if res.Store == nil || res.Notifier != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if err := res.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
}

func TestCreateSQLiteBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cashbook.db")
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: SQLiteBackend, SQLiteDBPath: path})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Cleanup()

	txs, err := res.Store.List(context.Background())
	if err != nil || len(txs) != 0 {
		t.Fatalf("fresh database: txs=%v err=%v", txs, err)
	}
	if res.Notifier != nil {
		t.Fatal("notifier must be nil without AMQP_URL")
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	got := GetBackendTypeStrings()
	if len(got) != 2 || got[0] != "memory" || got[1] != "sqlite" {
		t.Fatalf("got %v", got)
	}
}
