package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"
	"github.com/yourusername/nextai-chat/internal/domain/entity"
	"github.com/yourusername/nextai-chat/internal/domain/repository"
)

type excelUserParser struct {
	logger *slog.Logger
}

// NewExcelUserParser creates an Excel user-table parser
func NewExcelUserParser(logger *slog.Logger) repository.UserParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &excelUserParser{logger: logger}
}

// ParseUsers reads users from an .xlsx file
func (e *excelUserParser) ParseUsers(ctx context.Context, filePath string) ([]entity.UserRecord, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open excel file: %w", err)
	}
	defer f.Close()

	return e.parseExcelFile(f)
}

// ParseUsersFromBytes reads users from .xlsx contents
func (e *excelUserParser) ParseUsersFromBytes(ctx context.Context, data []byte) ([]entity.UserRecord, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open excel from bytes: %w", err)
	}
	defer f.Close()

	return e.parseExcelFile(f)
}

// parseExcelFile reads the first sheet. A header row is optional; without one
// the first column is the username and the second the password.
func (e *excelUserParser) parseExcelFile(f *excelize.File) ([]entity.UserRecord, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("excel file is empty")
	}

	userCol, passCol := 0, 1
	startRow := 0
	if columnMap, ok := mapColumns(rows[0]); ok {
		userCol, passCol = columnMap["username"], columnMap["password"]
		startRow = 1
		e.logger.Debug("user sheet header detected", "username_col", userCol, "password_col", passCol)
	}

	seen := make(map[string]bool)
	var users []entity.UserRecord
	for i := startRow; i < len(rows); i++ {
		row := rows[i]
		if isEmptyRow(row) {
			continue
		}

		username := cell(row, userCol)
		password := cell(row, passCol)
		if username == "" || password == "" {
			e.logger.Warn("skipping incomplete user row", "row", i+1)
			continue
		}
		if seen[username] {
			e.logger.Warn("skipping duplicate user row", "row", i+1, "username", username)
			continue
		}
		seen[username] = true

		users = append(users, entity.UserRecord{Username: username, Password: password})
	}

	if len(users) == 0 {
		return nil, fmt.Errorf("no users found in excel file")
	}

	return users, nil
}

// Header cell names, matched against the whole trimmed, lowercased cell
var (
	usernameHeaders = []string{"username", "user name", "user", "login", "name", "foydalanuvchi"}
	passwordHeaders = []string{"password", "pass", "parol", "secret", "pwd"}
)

// mapColumns detects a header row naming the username and password columns.
// Only cells that are exactly a header name count, so data rows such as
// "username1 | passw0rd" are not taken for a header.
func mapColumns(header []string) (map[string]int, bool) {
	columnMap := make(map[string]int)

	for i, col := range header {
		colName := strings.ToLower(strings.TrimSpace(col))

		switch {
		case slices.Contains(passwordHeaders, colName):
			columnMap["password"] = i
		case slices.Contains(usernameHeaders, colName):
			columnMap["username"] = i
		}
	}

	_, hasUser := columnMap["username"]
	_, hasPass := columnMap["password"]
	return columnMap, hasUser && hasPass
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isEmptyRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
