package validation

import (
	"sort"
	"strings"
)

// NumericFeatures lists the numeric input fields in training order.
var NumericFeatures = []string{
	"age",
	"revenu_mensuel",
	"nombre_experiences_precedentes",
	"nombre_heures_travailless",
	"annees_dans_l_entreprise",
	"annees_dans_le_poste_actuel",
	"satisfaction_employee_environnement",
	"satisfaction_employee_nature_travail",
	"satisfaction_employee_equipe",
	"satisfaction_employee_equilibre_pro_perso",
	"note_evaluation_precedente",
	"note_evaluation_actuelle",
	"nombre_participation_pee",
	"nb_formations_suivies",
	"nombre_employee_sous_responsabilite",
	"distance_domicile_travail",
	"niveau_education",
	"frequence_deplacement",
	"annees_depuis_la_derniere_promotion",
	"annes_sous_responsable_actuel",
}

// CategoricalFeatures lists the categorical input fields in training order.
var CategoricalFeatures = []string{
	"genre",
	"statut_marital",
	"departement",
	"poste",
	"domaine_etude",
	"heure_supplementaires",
}

// categories maps each categorical field to its closed set of canonical values
// and the accepted aliases for each. Alias matching is case-insensitive.
var categories = map[string]map[string][]string{
	"genre": {
		"Male":   {"M", "Homme"},
		"Female": {"F", "Femme"},
	},
	"statut_marital": {
		"Single":   {"Célibataire", "Celibataire"},
		"Married":  {"Marié", "Marié(e)", "Marie"},
		"Divorced": {"Divorcé", "Divorcé(e)", "Divorce"},
	},
	"departement": {
		"Sales":                  {"Commercial"},
		"Research & Development": {"R&D"},
		"Human Resources":        {"Ressources Humaines", "RH"},
		"Consulting":             nil,
	},
	"poste": {
		"Sales Executive":           {"Cadre Commercial"},
		"Sales Representative":      {"Représentant Commercial"},
		"Research Scientist":        nil,
		"Laboratory Technician":     nil,
		"Manufacturing Director":    nil,
		"Healthcare Representative": nil,
		"Manager":                   nil,
		"Research Director":         {"Directeur Technique"},
		"Human Resources":           {"Ressources Humaines"},
		"Consultant":                nil,
		"Tech Lead":                 nil,
	},
	"domaine_etude": {
		"Life Sciences":    nil,
		"Medical":          nil,
		"Marketing":        nil,
		"Technical Degree": nil,
		"Human Resources":  {"Ressources Humaines"},
		"Infra & Cloud":    nil,
		"Other":            {"Autre"},
	},
	"heure_supplementaires": {
		"Yes": {"Oui"},
		"No":  {"Non"},
	},
}

// lookup is built once from categories: field -> lower(alias or canonical) -> canonical.
var lookup = buildLookup()

func buildLookup() map[string]map[string]string {
	out := make(map[string]map[string]string, len(categories))
	for field, values := range categories {
		m := make(map[string]string)
		for canonical, aliases := range values {
			m[strings.ToLower(canonical)] = canonical
			for _, a := range aliases {
				m[strings.ToLower(a)] = canonical
			}
		}
		out[field] = m
	}
	return out
}

// Canonical returns the canonical category for a raw value of the given field.
func Canonical(field, raw string) (string, bool) {
	m, ok := lookup[field]
	if !ok {
		return "", false
	}
	v, ok := m[strings.ToLower(strings.TrimSpace(raw))]
	return v, ok
}

// Categories returns the sorted canonical values accepted for a categorical field.
func Categories(field string) []string {
	values := categories[field]
	out := make([]string, 0, len(values))
	for v := range values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// fieldOrder gives every wire field a stable position for error reporting.
var fieldOrder = func() map[string]int {
	m := map[string]int{"body": -1, "employee_id": 0}
	for i, f := range NumericFeatures {
		m[f] = 1 + i
	}
	for i, f := range CategoricalFeatures {
		m[f] = 1 + len(NumericFeatures) + i
	}
	return m
}()
