// Package validation checks raw employee records against the feature schema
// and produces normalized models.EmployeeRecord values.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kiranshivaraju/attrition/pkg/models"
)

// employeeInput mirrors models.EmployeeRecord with pointer fields so that an
// absent field can be told apart from a zero value.
type employeeInput struct {
	EmployeeID *string `json:"employee_id" validate:"omitempty,max=50"`

	Age                                   *int     `json:"age" validate:"required,gte=18,lte=65"`
	RevenuMensuel                         *float64 `json:"revenu_mensuel" validate:"required,gt=0,lte=1000000"`
	NombreExperiencesPrecedentes          *int     `json:"nombre_experiences_precedentes" validate:"required,gte=0,lte=50"`
	NombreHeuresTravailless               *int     `json:"nombre_heures_travailless" validate:"required,gte=0,lte=168"`
	AnneesDansLEntreprise                 *int     `json:"annees_dans_l_entreprise" validate:"required,gte=0,lte=50"`
	AnneesDansLePosteActuel               *int     `json:"annees_dans_le_poste_actuel" validate:"required,gte=0,lte=50"`
	SatisfactionEmployeeEnvironnement     *int     `json:"satisfaction_employee_environnement" validate:"required,gte=1,lte=4"`
	SatisfactionEmployeeNatureTravail     *int     `json:"satisfaction_employee_nature_travail" validate:"required,gte=1,lte=4"`
	SatisfactionEmployeeEquipe            *int     `json:"satisfaction_employee_equipe" validate:"required,gte=1,lte=4"`
	SatisfactionEmployeeEquilibreProPerso *int     `json:"satisfaction_employee_equilibre_pro_perso" validate:"required,gte=1,lte=4"`
	NoteEvaluationPrecedente              *int     `json:"note_evaluation_precedente" validate:"required,gte=1,lte=4"`
	NoteEvaluationActuelle                *int     `json:"note_evaluation_actuelle" validate:"required,gte=1,lte=4"`
	NombreParticipationPEE                *int     `json:"nombre_participation_pee" validate:"required,gte=0,lte=50"`
	NbFormationsSuivies                   *int     `json:"nb_formations_suivies" validate:"required,gte=0,lte=20"`
	NombreEmployeeSousResponsabilite      *int     `json:"nombre_employee_sous_responsabilite" validate:"required,gte=0,lte=1000"`
	DistanceDomicileTravail               *int     `json:"distance_domicile_travail" validate:"required,gte=0,lte=500"`
	NiveauEducation                       *int     `json:"niveau_education" validate:"required,gte=1,lte=5"`
	FrequenceDeplacement                  *int     `json:"frequence_deplacement" validate:"required,gte=1,lte=4"`
	AnneesDepuisLaDernierePromotion       *int     `json:"annees_depuis_la_derniere_promotion" validate:"required,gte=0,lte=50"`
	AnnesSousResponsableActuel            *int     `json:"annes_sous_responsable_actuel" validate:"required,gte=0,lte=50"`

	Genre                *string `json:"genre" validate:"required,category"`
	StatutMarital        *string `json:"statut_marital" validate:"required,category"`
	Departement          *string `json:"departement" validate:"required,category"`
	Poste                *string `json:"poste" validate:"required,category"`
	DomaineEtude         *string `json:"domaine_etude" validate:"required,category"`
	HeureSupplementaires *string `json:"heure_supplementaires" validate:"required,category"`
}

// Validator validates raw employee records. Safe for concurrent use.
type Validator struct {
	v *validator.Validate
}

// New returns a Validator with the schema's custom rules registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// "category" checks a string against the closed set of its field.
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		_, ok := Canonical(fl.FieldName(), fl.Field().String())
		return ok
	})
	return &Validator{v: v}
}

// Outcome is the per-index result of ValidateBatch.
type Outcome struct {
	Record *models.EmployeeRecord
	Err    error
}

// Validate decodes and checks one raw record. Validation failures are
// returned as *ValidationError.
func (val *Validator) Validate(raw json.RawMessage) (*models.EmployeeRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		reason := "must be a JSON object"
		if err != nil && !isTypeError(err) {
			reason = "invalid JSON"
		}
		return nil, &ValidationError{Fields: []FieldError{{
			Field: "body", Code: CodeMalformed, Reason: reason,
		}}}
	}

	var in employeeInput
	verr := &ValidationError{}
	typeErrs := make(map[string]bool)

	target := reflect.ValueOf(&in).Elem()
	for name, value := range fields {
		idx, ok := inputFields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			continue
		}
		field := target.Field(idx)
		ptr := reflect.New(field.Type().Elem())
		if err := decodeField(value, ptr); err != nil {
			typeErrs[name] = true
			verr.Fields = append(verr.Fields, FieldError{
				Field:  name,
				Code:   CodeInvalidType,
				Reason: "must be of type " + describeKind(field.Type().Elem()),
			})
			continue
		}
		field.Set(ptr)
	}

	if err := val.v.Struct(&in); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, fmt.Errorf("validate employee: %w", err)
		}
		for _, fe := range fieldErrs {
			if typeErrs[fe.Field()] {
				continue
			}
			verr.Fields = append(verr.Fields, toFieldError(fe))
		}
	}

	if len(verr.Fields) > 0 {
		verr.sort()
		return nil, verr
	}
	return in.normalize(), nil
}

// decodeField decodes value into ptr. Integer fields also accept JSON numbers
// with no fractional part, such as 35.0.
func decodeField(value json.RawMessage, ptr reflect.Value) error {
	err := json.Unmarshal(value, ptr.Interface())
	if err == nil || ptr.Elem().Kind() != reflect.Int {
		return err
	}
	var f float64
	if json.Unmarshal(value, &f) != nil || f != math.Trunc(f) ||
		f < math.MinInt32 || f > math.MaxInt32 {
		return err
	}
	ptr.Elem().SetInt(int64(f))
	return nil
}

func isTypeError(err error) bool {
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &typeErr)
}

// inputFields maps wire names to employeeInput field indexes. Keys are matched
// exactly, unlike encoding/json's case-insensitive struct decoding.
var inputFields = func() map[string]int {
	t := reflect.TypeOf(employeeInput{})
	m := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name := strings.SplitN(t.Field(i).Tag.Get("json"), ",", 2)[0]
		m[name] = i
	}
	return m
}()

// ValidateBatch validates each record independently; one failure never hides
// the outcome of its siblings.
func (val *Validator) ValidateBatch(raws []json.RawMessage) []Outcome {
	out := make([]Outcome, len(raws))
	for i, raw := range raws {
		rec, err := val.Validate(raw)
		out[i] = Outcome{Record: rec, Err: err}
	}
	return out
}

func toFieldError(fe validator.FieldError) FieldError {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return FieldError{Field: field, Code: CodeMissing, Reason: "field required"}
	case "gte":
		return FieldError{Field: field, Code: CodeOutOfRange, Reason: "must be greater than or equal to " + fe.Param()}
	case "gt":
		return FieldError{Field: field, Code: CodeOutOfRange, Reason: "must be greater than " + fe.Param()}
	case "lte":
		return FieldError{Field: field, Code: CodeOutOfRange, Reason: "must be less than or equal to " + fe.Param()}
	case "max":
		return FieldError{Field: field, Code: CodeTooLong, Reason: "must be at most " + fe.Param() + " characters"}
	case "category":
		return FieldError{Field: field, Code: CodeInvalidChoice,
			Reason: "must be one of: " + strings.Join(Categories(field), ", ")}
	default:
		return FieldError{Field: field, Code: CodeMalformed, Reason: "failed " + fe.Tag() + " check"}
	}
}

func describeKind(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Int, reflect.Int64, reflect.Int32:
		return "integer"
	case reflect.Float64, reflect.Float32:
		return "number"
	case reflect.String:
		return "string"
	default:
		return t.String()
	}
}

// normalize is only called after Struct validation succeeded, so every
// required pointer is non-nil and every category resolves.
func (in *employeeInput) normalize() *models.EmployeeRecord {
	canon := func(field string, v *string) string {
		c, _ := Canonical(field, *v)
		return c
	}
	rec := &models.EmployeeRecord{
		Age:                                   *in.Age,
		RevenuMensuel:                         *in.RevenuMensuel,
		NombreExperiencesPrecedentes:          *in.NombreExperiencesPrecedentes,
		NombreHeuresTravailless:               *in.NombreHeuresTravailless,
		AnneesDansLEntreprise:                 *in.AnneesDansLEntreprise,
		AnneesDansLePosteActuel:               *in.AnneesDansLePosteActuel,
		SatisfactionEmployeeEnvironnement:     *in.SatisfactionEmployeeEnvironnement,
		SatisfactionEmployeeNatureTravail:     *in.SatisfactionEmployeeNatureTravail,
		SatisfactionEmployeeEquipe:            *in.SatisfactionEmployeeEquipe,
		SatisfactionEmployeeEquilibreProPerso: *in.SatisfactionEmployeeEquilibreProPerso,
		NoteEvaluationPrecedente:              *in.NoteEvaluationPrecedente,
		NoteEvaluationActuelle:                *in.NoteEvaluationActuelle,
		NombreParticipationPEE:                *in.NombreParticipationPEE,
		NbFormationsSuivies:                   *in.NbFormationsSuivies,
		NombreEmployeeSousResponsabilite:      *in.NombreEmployeeSousResponsabilite,
		DistanceDomicileTravail:               *in.DistanceDomicileTravail,
		NiveauEducation:                       *in.NiveauEducation,
		FrequenceDeplacement:                  *in.FrequenceDeplacement,
		AnneesDepuisLaDernierePromotion:       *in.AnneesDepuisLaDernierePromotion,
		AnnesSousResponsableActuel:            *in.AnnesSousResponsableActuel,
		Genre:                                 canon("genre", in.Genre),
		StatutMarital:                         canon("statut_marital", in.StatutMarital),
		Departement:                           canon("departement", in.Departement),
		Poste:                                 canon("poste", in.Poste),
		DomaineEtude:                          canon("domaine_etude", in.DomaineEtude),
		HeureSupplementaires:                  canon("heure_supplementaires", in.HeureSupplementaires),
	}
	if in.EmployeeID != nil {
		rec.EmployeeID = *in.EmployeeID
	}
	return rec
}
