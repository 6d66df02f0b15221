package book

import (
	"encoding/json"
	"strings"
)

// Category is the shelf a book is catalogued under.
type Category string

const (
	CategoryFiction    Category = "FICTION"
	CategoryNonFiction Category = "NON_FICTION"
	CategoryScience    Category = "SCIENCE"
	CategoryHistory    Category = "HISTORY"
)

// CategoryDisplayNames maps every known category to its display label.
// A category is valid iff it is a key of this table.
var CategoryDisplayNames = map[Category]string{
	CategoryFiction:    "Ficción",
	CategoryNonFiction: "No Ficción",
	CategoryScience:    "Ciencia",
	CategoryHistory:    "Historia",
}

// ParseCategory resolves a category tag, ignoring case and surrounding spaces.
func ParseCategory(tag string) (Category, bool) {
	c := Category(strings.ToUpper(strings.TrimSpace(tag)))
	_, ok := CategoryDisplayNames[c]
	return c, ok
}

// Book represents a catalogued title and its copy counts.
type Book struct {
	ID              int64    `json:"id"`
	Title           string   `json:"title"`
	Author          string   `json:"author"`
	ISBN            string   `json:"isbn"`
	Category        Category `json:"category"`
	TotalCopies     int      `json:"totalCopies"`
	AvailableCopies int      `json:"availableCopies"`
}

// IsAvailable reports whether at least one copy can be lent out.
func (b Book) IsAvailable() bool {
	return b.AvailableCopies > 0
}

// MarshalJSON adds the derived "available" flag.
func (b Book) MarshalJSON() ([]byte, error) {
	type plain Book
	return json.Marshal(struct {
		plain
		Available bool `json:"available"`
	}{plain: plain(b), Available: b.IsAvailable()})
}

// Draft holds the caller-supplied fields used to create or fully replace a book.
// AvailableCopies is nil when the caller did not send it.
type Draft struct {
	Title           string   `json:"title" validate:"notblank,max=255"`
	Author          string   `json:"author" validate:"notblank,max=255"`
	ISBN            string   `json:"isbn" validate:"notblank,max=20"`
	Category        Category `json:"category" validate:"required,oneof=FICTION NON_FICTION SCIENCE HISTORY"`
	TotalCopies     int      `json:"totalCopies" validate:"min=1,max=2147483647"`
	AvailableCopies *int     `json:"availableCopies" validate:"omitempty,min=0,max=2147483647"`
}

// trimmed returns d with surrounding whitespace removed from its text fields.
func (d Draft) trimmed() Draft {
	d.Title = strings.TrimSpace(d.Title)
	d.Author = strings.TrimSpace(d.Author)
	d.ISBN = strings.TrimSpace(d.ISBN)
	return d
}
