package service

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/clinic-announcements-api/internal/models"
	appErrors "github.com/noah-isme/clinic-announcements-api/pkg/errors"
)

// announcementFields mirrors the persisted announcement for rule checking.
type announcementFields struct {
	Title       string              `json:"title" validate:"required,max=200"`
	Content     string              `json:"content" validate:"required,max=2000"`
	Type        string              `json:"type" validate:"required,announcement_type"`
	Priority    string              `json:"priority" validate:"required,announcement_priority"`
	TargetRoles []string            `json:"target_roles" validate:"required,min=1,dive,target_role"`
	PublishDate time.Time           `json:"publish_date" validate:"required"`
	CreatedBy   string              `json:"created_by" validate:"required"`
	Attachments []models.Attachment `json:"attachments" validate:"dive"`
}

func registerAnnouncementRules(v *validator.Validate) {
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("announcement_type", func(fl validator.FieldLevel) bool {
		return models.AnnouncementType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("announcement_priority", func(fl validator.FieldLevel) bool {
		return models.AnnouncementPriority(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("target_role", func(fl validator.FieldLevel) bool {
		return models.UserRole(fl.Field().String()).ValidTarget()
	})
}

// validateAnnouncement checks a complete record and reports the first offending field.
func validateAnnouncement(v *validator.Validate, a *models.Announcement) error {
	fields := announcementFields{
		Title:       a.Title,
		Content:     a.Content,
		Type:        string(a.Type),
		Priority:    string(a.Priority),
		TargetRoles: a.TargetRoles.Strings(),
		PublishDate: a.PublishDate,
		CreatedBy:   a.CreatedBy,
		Attachments: a.Attachments,
	}
	if err := v.Struct(fields); err != nil {
		return translateValidation(err)
	}
	if a.ExpiryDate != nil && a.ExpiryDate.IsZero() {
		return appErrors.Validation("expiry_date", "must be a valid timestamp")
	}
	return nil
}

func translateValidation(err error) error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	fe := errs[0]
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}
	return appErrors.Validation(field, validationReason(fe))
}

func validationReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return "must not be empty"
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "announcement_type":
		return "must be one of general, urgent, policy, training, maintenance, system"
	case "announcement_priority":
		return "must be one of low, medium, high, critical"
	case "target_role":
		return fmt.Sprintf("unknown role %q", fe.Value())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
