package transfer

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		if err := validate.RegisterValidation("notblank", validators.NotBlank); err != nil {
			panic(fmt.Sprintf("register notblank: %v", err))
		}
	})
	return validate
}

var ruleMessages = map[string]string{
	"JournalDTO.Title.required":    "Title is required",
	"JournalDTO.Title.notblank":    "Title is required",
	"JournalDTO.Description.max":   "Description is too long",
	"JournalDTO.Icon.max":          "Icon is too long",
	"EntryDTO.Title.max":           "Title is too long",
	"EntryDTO.EntryDate.required":  "Entry date is required",
	"EntryDTO.WordCount.gte":       "Word count cannot be negative",
	"EntryDTO.Latitude.gte":        "Invalid latitude (must be -90 to 90)",
	"EntryDTO.Latitude.lte":        "Invalid latitude (must be -90 to 90)",
	"EntryDTO.Longitude.gte":       "Invalid longitude (must be -180 to 180)",
	"EntryDTO.Longitude.lte":       "Invalid longitude (must be -180 to 180)",
	"MediaDTO.Filename.required":   "Filename is required",
	"MediaDTO.Filename.notblank":   "Filename is required",
	"MediaDTO.MediaType.required":  "Media type is required",
	"MediaDTO.MediaType.notblank":  "Media type is required",
	"MediaDTO.FileSize.gte":        "File size cannot be negative",
	"MediaDTO.Width.gte":           "Width cannot be negative",
	"MediaDTO.Height.gte":          "Height cannot be negative",
	"MediaDTO.Duration.gte":        "Duration cannot be negative",
	"MoodLogDTO.MoodName.required": "Mood name is required",
	"MoodLogDTO.MoodName.notblank": "Mood name is required",
	"MoodLogDTO.Note.max":          "Mood note is too long",
	"MoodLogDTO.MoodScore.gte":     "Mood score must be between -5 and 5",
	"MoodLogDTO.MoodScore.lte":     "Mood score must be between -5 and 5",
}

type ValidationResult struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) addWarning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Err converts a failed result into an appErr.ValidationError.
func (r *ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	return appErr.NewValidationError(r.Errors...)
}

func (r *ValidationResult) checkStruct(context string, v interface{}) {
	err := structValidator().Struct(v)
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		r.addError("%s: %v", context, err)
		return
	}
	for _, fe := range fieldErrs {
		key := fe.StructNamespace()
		if idx := strings.LastIndex(key, "."); idx >= 0 {
			owner := key[:idx]
			if dot := strings.LastIndex(owner, "."); dot >= 0 {
				owner = owner[dot+1:]
			}
			key = owner + "." + fe.StructField()
		}
		msg, ok := ruleMessages[key+"."+fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
		}
		r.addError("%s: %s", context, msg)
	}
}

// ValidateExport checks an assembled payload before it is packaged.
func ValidateExport(p *ExportPayload) *ValidationResult {
	result := &ValidationResult{}
	if p == nil {
		result.addError("Export payload is empty")
		return result
	}
	if strings.TrimSpace(p.ExportVersion) == "" {
		result.addError("Export version is required")
	}
	validatePayloadBody(result, p)
	return result
}

// ValidateImport checks a native manifest. A version other than
// ExportVersion fails the whole import.
func ValidateImport(p *ExportPayload) *ValidationResult {
	result := &ValidationResult{}
	if p == nil {
		result.addError("Import data is empty")
		return result
	}
	if p.ExportVersion != ExportVersion {
		result.addError("Unsupported export version %q (expected %q)", p.ExportVersion, ExportVersion)
		return result
	}
	validatePayloadBody(result, p)
	return result
}

func validatePayloadBody(result *ValidationResult, p *ExportPayload) {
	if len(p.Journals) == 0 {
		result.addWarning("Export contains no journals")
	}
	if p.EntryCount() == 0 {
		result.addWarning("Export contains no entries")
	}
	titles := make(map[string]bool, len(p.Journals))
	duplicate := false
	for i := range p.Journals {
		key := strings.ToLower(p.Journals[i].Title)
		if titles[key] {
			duplicate = true
		}
		titles[key] = true
	}
	if duplicate {
		result.addWarning("Export contains duplicate journals")
	}
	for i := range p.Journals {
		ValidateJournal(result, &p.Journals[i], fmt.Sprintf("Journal %d", i+1))
	}
}

func ValidateJournal(result *ValidationResult, j *JournalDTO, context string) {
	result.checkStruct(context, j)
	dates := make(map[string]bool, len(j.Entries))
	duplicateDates := false
	for i := range j.Entries {
		if dates[j.Entries[i].EntryDate] {
			duplicateDates = true
		}
		dates[j.Entries[i].EntryDate] = true
	}
	if duplicateDates {
		result.addWarning("%s: Contains entries with duplicate dates", context)
	}
	for i := range j.Entries {
		ValidateEntry(result, &j.Entries[i], fmt.Sprintf("%s, Entry %d", context, i+1))
	}
}

func ValidateEntry(result *ValidationResult, e *EntryDTO, context string) {
	result.checkStruct(context, e)
	if !e.IsDraft && strings.TrimSpace(e.Text()) == "" && len(e.Media) == 0 {
		result.addWarning("%s: Content is empty", context)
	}
	if e.MoodLog != nil {
		result.checkStruct(context+", Mood", e.MoodLog)
	}
	for i := range e.Media {
		result.checkStruct(fmt.Sprintf("%s, Media %d", context, i+1), &e.Media[i])
	}
}
