package domain

import "time"

// Book is a catalog title. AvailableQuantity tracks free copies and is only
// changed through the conditional inventory updates, never set directly.
type Book struct {
	ID                int32     `json:"id"`
	Title             string    `json:"title"`
	Author            string    `json:"author"`
	Description       string    `json:"description,omitempty"`
	Genre             string    `json:"genre,omitempty"`
	PriceCents        int64     `json:"price_cents"`
	TotalQuantity     int32     `json:"total_quantity"`
	AvailableQuantity int32     `json:"available_quantity"`
	CreatedOn         time.Time `json:"created_on"`
	UpdatedOn         time.Time `json:"updated_on"`
}

// Available reports whether at least one copy is free to lend.
func (b *Book) Available() bool {
	return b.AvailableQuantity > 0
}
