package identity

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smilehealth/smilehealth/internal/domain/visibility"
)

// ImportResult summarizes a bulk import run.
type ImportResult struct {
	Created int
	Skipped int
	Errors  []string
}

// ImportUsers reads a CSV stream with header
// username,email,first_name,last_name,role,branches,password
// and provisions an account per row. The branches column is a
// semicolon-separated list of branch names; missing branches are
// created on the fly. Rows that fail are reported and skipped.
func (s *Service) ImportUsers(ctx context.Context, r io.Reader, logger zerolog.Logger) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 7
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) != 7 || strings.ToLower(header[0]) != "username" {
		return nil, fmt.Errorf("unexpected header: %v", header)
	}

	result := &ImportResult{}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		branchIDs, err := s.resolveBranches(ctx, record[5])
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		_, err = s.CreateUser(ctx, CreateUserParams{
			Username:  strings.TrimSpace(record[0]),
			Email:     strings.TrimSpace(record[1]),
			FirstName: strings.TrimSpace(record[2]),
			LastName:  strings.TrimSpace(record[3]),
			Role:      visibility.Role(strings.ToUpper(strings.TrimSpace(record[4]))),
			Password:  record[6],
			Branches:  branchIDs,
		})
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			logger.Warn().Err(err).Int("line", line).Str("username", record[0]).Msg("import: row skipped")
			continue
		}
		result.Created++
	}
	logger.Info().Int("created", result.Created).Int("skipped", result.Skipped).Msg("import: finished")
	return result, nil
}

func (s *Service) resolveBranches(ctx context.Context, field string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, name := range strings.Split(field, ";") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		branch, err := s.branches.GetByName(ctx, name)
		if err != nil {
			branch = &Branch{Name: name}
			if err := s.branches.Create(ctx, branch); err != nil {
				return nil, fmt.Errorf("create branch %q: %w", name, err)
			}
		}
		ids = append(ids, branch.ID)
	}
	return ids, nil
}
