package storage_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/atlas-erp/atlas/pkg/storage"
)

// Azurite's published development account.
const devConnString = "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;"

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew(t *testing.T) {
	_, err := storage.New(&storage.Config{ContainerName: "executions", ConnectionString: devConnString}, discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = storage.New(&storage.Config{ContainerName: "executions", ConnectionString: "garbage"}, discard())
	if err == nil {
		t.Fatal("New() should reject a malformed connection string")
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{storage.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("download: %w", storage.ErrNotFound), http.StatusNotFound},
		{storage.ErrEmptyKey, http.StatusBadRequest},
		{storage.ErrInvalidKey, http.StatusBadRequest},
		{errors.New("network"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := storage.MapHTTPStatus(tt.err); got != tt.want {
			t.Errorf("MapHTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestParseMaxResults(t *testing.T) {
	tests := []struct {
		input   string
		want    int32
		wantErr bool
	}{
		{"", 50, false},
		{"10", 10, false},
		{"999999", storage.MaxListCap, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"ten", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := storage.ParseMaxResults(tt.input, 50)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMaxResults(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMaxResults(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestOperationsRejectBadKeys(t *testing.T) {
	sys, err := storage.New(&storage.Config{ContainerName: "executions", ConnectionString: devConnString}, discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{"", "../etc/passwd", "/executions/x.json"} {
		t.Run(key, func(t *testing.T) {
			ops := map[string]error{
				"upload": sys.Upload(ctx, key, bytes.NewReader(nil), "application/json"),
				"delete": sys.Delete(ctx, key),
			}
			_, ops["download"] = sys.Download(ctx, key)
			_, ops["find"] = sys.Find(ctx, key)

			for op, err := range ops {
				if storage.MapHTTPStatus(err) != http.StatusBadRequest {
					t.Errorf("%s(%q) error = %v, want a key error", op, key, err)
				}
			}
		})
	}
}
