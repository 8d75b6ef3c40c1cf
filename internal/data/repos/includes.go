package repos

import (
	"fmt"
	"strings"

	"gorm.io/gorm/schema"

	"github.com/yungbote/txcore/internal/domain"
)

// Include is an eager-load path validated against the entity's relations
// when it is built, so a bad path fails at setup and never at query time.
type Include struct {
	path string
}

func (i Include) Path() string { return i.path }

func validateInclude(s *schema.Schema, path string) (Include, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Include{}, domain.NewError(domain.CodeValidation, "repo.include", "empty include path", nil)
	}
	cur := s
	for _, part := range strings.Split(path, ".") {
		rel, ok := cur.Relationships.Relations[part]
		if !ok || rel.FieldSchema == nil {
			return Include{}, domain.NewError(domain.CodeValidation, "repo.include",
				fmt.Sprintf("%s has no relation %q (in %q)", cur.Name, part, path), nil)
		}
		cur = rel.FieldSchema
	}
	return Include{path: path}, nil
}
