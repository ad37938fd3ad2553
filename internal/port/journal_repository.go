package port

import (
	"context"

	"github.com/rl1809/rowstore/internal/core/domain"
)

type JournalRepository interface {
	// AppendChange persists one applied row change
	AppendChange(ctx context.Context, change domain.RowChange) error
}
