package port

import (
	"context"
	"io"
)

// UploadedFile is a receipt file supplied with an accounting submission
type UploadedFile struct {
	Name    string
	Content io.Reader
}

// ReceiptStorage stages receipt files before the accounting transition.
// Stage returns one URL per file, in order; Discard removes files staged
// for a transition that did not commit.
type ReceiptStorage interface {
	Stage(ctx context.Context, imprestID string, files []UploadedFile) ([]string, error)
	Discard(ctx context.Context, urls []string) error
}
