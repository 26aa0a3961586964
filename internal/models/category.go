package models

// DefaultCategoryID is the protected category every install ships with.
const DefaultCategoryID int64 = 1

// Category groups forms for default notification routing.
type Category struct {
	ID        int64  `db:"cat_id" json:"cat_id"`
	Name      string `db:"cat_name" json:"cat_name"`
	NotifyUID string `db:"email_uid" json:"email_uid"`
	NotifyGID int64  `db:"email_gid" json:"email_gid"`
}
