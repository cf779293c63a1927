package models

import "time"

// Category represents the kind of rule a violation belongs to
type Category string

const (
	CategorySales      Category = "content_sales"
	CategoryLink       Category = "content_link"
	CategoryAdminAbuse Category = "admin_abuse"
)

// AllCategories returns every known category
func AllCategories() []Category {
	return []Category{CategorySales, CategoryLink, CategoryAdminAbuse}
}

// ParseCategory maps a raw string to a Category
func ParseCategory(raw string) (Category, bool) {
	switch Category(raw) {
	case CategorySales, CategoryLink, CategoryAdminAbuse:
		return Category(raw), true
	default:
		return "", false
	}
}

// ViolationRecord representa el contador de violaciones para un (grupo, usuario, categoría)
// Coincide con la tabla original: group_id, user_id, category, count
type ViolationRecord struct {
	GroupID     string    `bson:"group_id" json:"group_id"`
	UserID      string    `bson:"user_id" json:"user_id"`
	Category    Category  `bson:"category" json:"category"`
	Count       int       `bson:"count" json:"count"`
	LastUpdated time.Time `bson:"last_updated" json:"last_updated"`
}
