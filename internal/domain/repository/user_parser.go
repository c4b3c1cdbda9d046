package repository

import (
	"context"

	"github.com/yourusername/nextai-chat/internal/domain/entity"
)

// UserParser reads user tables from spreadsheet files
type UserParser interface {
	// ParseUsers reads users from a file on disk
	ParseUsers(ctx context.Context, filePath string) ([]entity.UserRecord, error)

	// ParseUsersFromBytes reads users from raw file contents
	ParseUsersFromBytes(ctx context.Context, data []byte) ([]entity.UserRecord, error)
}
