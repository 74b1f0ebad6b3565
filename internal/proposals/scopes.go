package proposals

import (
	dbpkg "github.com/cfphub/cfpserver/internal/db"
	"github.com/cfphub/cfpserver/internal/models"
	"gorm.io/gorm"
)

// Scope composes a proposal query filter; use with (*gorm.DB).Scopes.
type Scope = func(tx *gorm.DB) *gorm.DB

// Visible keeps proposals whose call is not archived.
func Visible(tx *gorm.DB) *gorm.DB {
	return tx.Joins("JOIN calls ON calls.id = proposals.call_id").
		Where("calls.archived = ?", false)
}

// ForOpenCall keeps proposals whose call is open.
func ForOpenCall(tx *gorm.DB) *gorm.DB {
	return tx.Joins("JOIN calls ON calls.id = proposals.call_id").
		Where("calls.open = ?", true)
}

// Editable keeps proposals that may still be modified.
func Editable(tx *gorm.DB) *gorm.DB {
	return ForOpenCall(tx)
}

// MentorsCanRead keeps proposals flagged readable by mentors.
func MentorsCanRead(tx *gorm.DB) *gorm.DB {
	return tx.Where("proposals.mentors_can_read = ?", true)
}

// Selected keeps proposals picked for the program.
func Selected(tx *gorm.DB) *gorm.DB {
	return tx.Where("proposals.selected = ?", true)
}

// NotFrom excludes a user's own proposals.
func NotFrom(userID uint64) Scope {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where("proposals.user_id <> ?", userID)
	}
}

// NotRatedByUser keeps proposals the user has not rated, as a
// set-difference against the user's rating relations.
func NotRatedByUser(userID uint64) Scope {
	return func(tx *gorm.DB) *gorm.DB {
		sub := tx.Session(&gorm.Session{NewDB: true}).
			Model(&models.UserProposalRating{}).
			Select("proposal_id").
			Where("user_id = ?", userID)
		return tx.Where("proposals.id NOT IN (?)", sub)
	}
}

// TitleMatches filters on a case-insensitive title substring.
func TitleMatches(conn *gorm.DB, query string) Scope {
	expr := dbpkg.CaseInsensitiveLikeExpr(conn, "proposals.title")
	pattern := dbpkg.NormalizeLikePattern(conn, "%"+query+"%")
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where(expr, pattern)
	}
}
