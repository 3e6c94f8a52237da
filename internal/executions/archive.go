package executions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/atlas-erp/atlas/pkg/storage"
	"github.com/atlas-erp/atlas/workflow"
)

// ArchivePrefix is the blob prefix of archived execution states.
const ArchivePrefix = "executions"

// ArchiveKey returns the blob key of an execution's archived state.
func ArchiveKey(s *workflow.ExecutionState) string {
	return path.Join(ArchivePrefix, s.WorkflowID.String(), s.ID.String()+".json")
}

type blobArchive struct {
	store storage.System
}

// NewArchive writes terminal states to blob storage as JSON documents.
func NewArchive(store storage.System) Archiver {
	return &blobArchive{store: store}
}

func (a *blobArchive) Archive(ctx context.Context, s *workflow.ExecutionState) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal execution %s: %w", s.ID, err)
	}
	return a.store.Upload(ctx, ArchiveKey(s), bytes.NewReader(data), "application/json")
}
