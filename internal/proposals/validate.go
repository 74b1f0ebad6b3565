package proposals

import (
	"fmt"
	"strings"

	"github.com/cfphub/cfpserver/internal/models"
)

// Validation failure reasons.
const (
	ReasonRequired       = "required"
	ReasonMustBeAccepted = "must_be_accepted"
)

// ValidationError reports one failed validation rule.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("proposals: %s %s", e.Field, e.Reason)
}

// ValidationErrors aggregates every failed rule for one record.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	fields := make([]string, 0, len(e))
	for _, item := range e {
		fields = append(fields, item.Field+" "+item.Reason)
	}
	return "proposals: validation failed: " + strings.Join(fields, ", ")
}

// rule is one entry of the validation pipeline.
type rule struct {
	field  string
	reason string
	ok     func(p *models.Proposal) bool
}

// presenceRules apply on both create and update, in order.
var presenceRules = []rule{
	{"id", ReasonRequired, func(p *models.Proposal) bool { return strings.TrimSpace(p.ID) != "" }},
	{"title", ReasonRequired, func(p *models.Proposal) bool { return strings.TrimSpace(p.Title) != "" }},
	{"public_description", ReasonRequired, func(p *models.Proposal) bool { return strings.TrimSpace(p.PublicDescription) != "" }},
	{"time_slot", ReasonRequired, func(p *models.Proposal) bool { return strings.TrimSpace(p.TimeSlot) != "" }},
	{"call", ReasonRequired, func(p *models.Proposal) bool { return p.CallID != 0 }},
	{"user", ReasonRequired, func(p *models.Proposal) bool { return p.UserID != 0 }},
}

// validate runs the pipeline against a record. Terms acceptance is checked
// on create only and is never re-checked on update.
func validate(p *models.Proposal, onCreate, termsAccepted bool) ValidationErrors {
	var errs ValidationErrors
	for _, r := range presenceRules {
		if !r.ok(p) {
			errs = append(errs, ValidationError{Field: r.field, Reason: r.reason})
		}
	}
	if onCreate && !termsAccepted {
		errs = append(errs, ValidationError{Field: "terms_and_conditions", Reason: ReasonMustBeAccepted})
	}
	return errs
}
