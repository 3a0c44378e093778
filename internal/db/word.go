package db

// Word is a dictionary entry. Words are stored lowercase so membership
// checks are a plain equality lookup.
type Word struct {
	ID     uint   `gorm:"primaryKey"`
	Word   string `gorm:"size:255;not null;uniqueIndex:idx_words_word_locale;index"`
	Locale string `gorm:"size:10;not null;default:en;uniqueIndex:idx_words_word_locale;index"`
}
