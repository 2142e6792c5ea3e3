package query

import (
	"errors"
	"strings"

	"github.com/tinycache/tinycache/logger"
)

// suspiciousTokens are character sequences with no place in a legitimate
// pipeline: statement separators, comment markers, and path traversal.
var suspiciousTokens = []string{";", "--", "/*", "*/", ".."}

// ValidateQuery screens a raw QUERY body before any parsing. It blocks
// attempts to smuggle a database reference into the pipeline and the common
// injection/traversal character classes, logging a warning for each
// rejection. Returns nil when the query is safe to parse.
func ValidateQuery(database, rawQuery string, log *logger.Logger) error {
	normalized := strings.ToLower(strings.TrimSpace(rawQuery))

	if strings.Contains(normalized, "db:") {
		if log != nil {
			log.Warn(logger.LevelSystem, database, "suspicious query detected: possible db injection - "+normalized)
		}
		return errors.New("Invalid query: database references not allowed")
	}

	for _, token := range suspiciousTokens {
		if strings.Contains(normalized, token) {
			if log != nil {
				log.Warn(logger.LevelSystem, database, "suspicious query detected: invalid characters - "+normalized)
			}
			return errors.New("Invalid query: suspicious characters detected")
		}
	}
	return nil
}
