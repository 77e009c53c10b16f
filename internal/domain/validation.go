package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Messages shown next to the failing form fields.
const (
	msgTitle           = "Judul harus diisi"
	msgDescription     = "Deskripsi minimal 10 karakter"
	msgCategory        = "Kategori tidak valid"
	msgStartDate       = "Tanggal mulai harus diisi"
	msgEndDate         = "Tanggal selesai harus diisi"
	msgStatus          = "Status tidak valid"
	msgProgress        = "Progress harus antara 0 dan 100"
	msgWorkerCount     = "Jumlah pekerja minimal 1"
	msgResponsible     = "Penanggung jawab harus diisi"
	msgLocationName    = "Nama lokasi harus diisi"
	msgCoordinate      = "Koordinat harus berupa angka"
	msgRiskLevel       = "Tingkat risiko tidak valid"
	msgWeather         = "Kondisi cuaca tidak valid"
	msgSafetyIncidents = "Jumlah insiden tidak boleh negatif"
	msgVersion         = "Versi tidak valid"
	msgNotNumber       = "Nilai harus berupa angka"
	msgNotInteger      = "Nilai harus berupa bilangan bulat"
	msgOutOfRange      = "Nilai terlalu besar"
	msgInvalid         = "Nilai tidak valid"
)

var fieldMessages = map[string]string{
	"title":              msgTitle,
	"description":        msgDescription,
	"category":           msgCategory,
	"startDate":          msgStartDate,
	"endDate":            msgEndDate,
	"status":             msgStatus,
	"progress":           msgProgress,
	"workerCount":        msgWorkerCount,
	"responsiblePersons": msgResponsible,
	"locationName":       msgLocationName,
	"riskLevel":          msgRiskLevel,
	"weatherCondition":   msgWeather,
	"safetyIncidents":    msgSafetyIncidents,
	"version":            msgVersion,
}

// ReportInput is a fully typed, validated report candidate.
// Status, Progress and Version are only populated by ValidateEdit.
type ReportInput struct {
	Title              string
	Description        string
	Category           Category
	StartDate          string
	EndDate            string
	Status             Status
	Progress           int
	WorkerCount        int
	ResponsiblePersons []string
	Location           Location
	HSSE               HSSEData
	Version            int
}

type reportForm struct {
	Title              string   `form:"title" validate:"required"`
	Description        string   `form:"description" validate:"min=10"`
	Category           string   `form:"category" validate:"oneof=perawatan pembangunan upgrading perbaikan"`
	StartDate          string   `form:"startDate" validate:"required"`
	EndDate            string   `form:"endDate" validate:"required"`
	WorkerCount        int      `form:"workerCount" validate:"min=1"`
	ResponsiblePersons []string `form:"responsiblePersons" validate:"min=1"`
	LocationName       string   `form:"locationName" validate:"required"`
	Latitude           *float64 `form:"latitude"`
	Longitude          *float64 `form:"longitude"`
	RiskLevel          string   `form:"riskLevel" validate:"oneof=low medium high"`
	WeatherCondition   string   `form:"weatherCondition" validate:"oneof=sunny cloudy rainy stormy"`
	SafetyIncidents    int      `form:"safetyIncidents" validate:"min=0"`
}

type editForm struct {
	reportForm
	Status   string `form:"status" validate:"oneof=planning ongoing completed delayed"`
	Progress *int   `form:"progress" validate:"required,min=0,max=100"`
	Version  *int   `form:"version" validate:"omitempty,min=1"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("form")
	})
	return v
}

// ValidateCreate validates raw create-form input. Every failing field is
// reported in the returned *ValidationError.
func ValidateCreate(raw map[string]any) (ReportInput, error) {
	p := newFormParser(raw)
	form := p.reportForm(true)
	if err := p.check(&form); err != nil {
		return ReportInput{}, err
	}
	return form.input(), nil
}

// ValidateEdit validates raw edit-form input, which additionally carries
// status, progress and an optional version stamp.
func ValidateEdit(raw map[string]any) (ReportInput, error) {
	p := newFormParser(raw)
	form := editForm{
		reportForm: p.reportForm(false),
		Status:     p.text("status"),
		Progress:   p.optionalInt("progress"),
		Version:    p.optionalInt("version"),
	}
	if err := p.check(&form); err != nil {
		return ReportInput{}, err
	}

	in := form.reportForm.input()
	in.Status = Status(form.Status)
	in.Progress = *form.Progress
	if form.Version != nil {
		in.Version = *form.Version
	}
	return in, nil
}

func (f reportForm) input() ReportInput {
	return ReportInput{
		Title:              f.Title,
		Description:        f.Description,
		Category:           Category(f.Category),
		StartDate:          f.StartDate,
		EndDate:            f.EndDate,
		WorkerCount:        f.WorkerCount,
		ResponsiblePersons: f.ResponsiblePersons,
		Location: Location{
			Name:      f.LocationName,
			Latitude:  f.Latitude,
			Longitude: f.Longitude,
		},
		HSSE: HSSEData{
			RiskLevel:        RiskLevel(f.RiskLevel),
			WeatherCondition: WeatherCondition(f.WeatherCondition),
			SafetyIncidents:  f.SafetyIncidents,
		},
	}
}

// formParser coerces loosely typed form values. Type errors are recorded
// per field and take precedence over rule failures on the same field.
type formParser struct {
	raw    map[string]any
	errors map[string]string
}

func newFormParser(raw map[string]any) *formParser {
	if raw == nil {
		raw = map[string]any{}
	}
	return &formParser{raw: raw, errors: map[string]string{}}
}

func (p *formParser) reportForm(withDefaults bool) reportForm {
	form := reportForm{
		Title:              p.text("title"),
		Description:        p.text("description"),
		Category:           p.text("category"),
		StartDate:          p.text("startDate"),
		EndDate:            p.text("endDate"),
		WorkerCount:        p.integer("workerCount", 0),
		ResponsiblePersons: p.persons("responsiblePersons"),
		LocationName:       p.text("locationName"),
		Latitude:           p.coordinate("latitude"),
		Longitude:          p.coordinate("longitude"),
		RiskLevel:          p.text("riskLevel"),
		WeatherCondition:   p.text("weatherCondition"),
		SafetyIncidents:    p.integer("safetyIncidents", 0),
	}
	if withDefaults {
		// same defaults the create form starts with
		if form.RiskLevel == "" {
			form.RiskLevel = string(RiskMedium)
		}
		if form.WeatherCondition == "" {
			form.WeatherCondition = string(WeatherSunny)
		}
	}
	return form
}

func (p *formParser) check(form any) error {
	if err := validate.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("failed to validate form: %w", err)
		}
		for _, fe := range fieldErrs {
			msg, ok := fieldMessages[fe.Field()]
			if !ok {
				msg = msgInvalid
			}
			p.fail(fe.Field(), msg)
		}
	}
	if len(p.errors) > 0 {
		return &ValidationError{Fields: p.errors}
	}
	return nil
}

func (p *formParser) fail(key, msg string) {
	if _, exists := p.errors[key]; !exists {
		p.errors[key] = msg
	}
}

func (p *formParser) text(key string) string {
	switch v := p.raw[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// number returns the numeric value of key and whether one was supplied.
func (p *formParser) number(key, failMsg string) (float64, bool) {
	var f float64
	switch v := p.raw[key].(type) {
	case nil:
		return 0, false
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			p.fail(key, failMsg)
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			p.fail(key, failMsg)
			return 0, false
		}
		f = parsed
	default:
		p.fail(key, failMsg)
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		p.fail(key, failMsg)
		return 0, false
	}
	return f, true
}

func (p *formParser) integer(key string, fallback int) int {
	if v := p.optionalInt(key); v != nil {
		return *v
	}
	return fallback
}

func (p *formParser) optionalInt(key string) *int {
	f, ok := p.number(key, msgNotNumber)
	if !ok {
		return nil
	}
	if f != math.Trunc(f) {
		p.fail(key, msgNotInteger)
		return nil
	}
	// columns are INT
	if f < math.MinInt32 || f > math.MaxInt32 {
		p.fail(key, msgOutOfRange)
		return nil
	}
	n := int(f)
	return &n
}

func (p *formParser) coordinate(key string) *float64 {
	f, ok := p.number(key, msgCoordinate)
	if !ok {
		return nil
	}
	return &f
}

func (p *formParser) persons(key string) []string {
	switch v := p.raw[key].(type) {
	case string:
		return ParseResponsiblePersons(v)
	case []string:
		return ParseResponsiblePersons(strings.Join(v, ","))
	case []any:
		names := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				names = append(names, s)
			}
		}
		return ParseResponsiblePersons(strings.Join(names, ","))
	}
	return nil
}
