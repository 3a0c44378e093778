package server

import (
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"shiritori/internal/db"
)

const dictionaryChunkSize = 1000

// ValidateWord reports whether word is in the dictionary for locale.
// Matching is case-insensitive; dictionary rows are stored lowercase.
func (s *Server) ValidateWord(word, locale string) bool {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return false
	}
	var count int64
	if err := s.db.Model(&db.Word{}).
		Where("word = ? AND locale = ?", word, locale).
		Count(&count).Error; err != nil {
		s.logger.Warn("dictionary lookup failed", zap.String("locale", locale), zap.Error(err))
		return false
	}
	return count > 0
}

// LoadDictionary bulk-inserts words for a locale, skipping entries that are
// already present. Returns the number of newly inserted words.
func (s *Server) LoadDictionary(locale string, words []string) (int, error) {
	rows := make([]db.Word, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, word := range words {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		rows = append(rows, db.Word{Word: word, Locale: locale})
	}

	inserted := 0
	for start := 0; start < len(rows); start += dictionaryChunkSize {
		end := start + dictionaryChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		result := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&chunk)
		if result.Error != nil {
			return inserted, result.Error
		}
		inserted += int(result.RowsAffected)
	}
	return inserted, nil
}
