// Package models contains shared data models used across the attrition codebase.
package models

// EmployeeRecord is a validated, normalized employee record ready for inference.
// Categorical fields hold canonical values only (see validation.Canonical).
type EmployeeRecord struct {
	EmployeeID string `json:"employee_id,omitempty"`

	Age                                   int     `json:"age"`
	RevenuMensuel                         float64 `json:"revenu_mensuel"`
	NombreExperiencesPrecedentes          int     `json:"nombre_experiences_precedentes"`
	NombreHeuresTravailless               int     `json:"nombre_heures_travailless"`
	AnneesDansLEntreprise                 int     `json:"annees_dans_l_entreprise"`
	AnneesDansLePosteActuel               int     `json:"annees_dans_le_poste_actuel"`
	SatisfactionEmployeeEnvironnement     int     `json:"satisfaction_employee_environnement"`
	SatisfactionEmployeeNatureTravail     int     `json:"satisfaction_employee_nature_travail"`
	SatisfactionEmployeeEquipe            int     `json:"satisfaction_employee_equipe"`
	SatisfactionEmployeeEquilibreProPerso int     `json:"satisfaction_employee_equilibre_pro_perso"`
	NoteEvaluationPrecedente              int     `json:"note_evaluation_precedente"`
	NoteEvaluationActuelle                int     `json:"note_evaluation_actuelle"`
	NombreParticipationPEE                int     `json:"nombre_participation_pee"`
	NbFormationsSuivies                   int     `json:"nb_formations_suivies"`
	NombreEmployeeSousResponsabilite      int     `json:"nombre_employee_sous_responsabilite"`
	DistanceDomicileTravail               int     `json:"distance_domicile_travail"`
	NiveauEducation                       int     `json:"niveau_education"`
	FrequenceDeplacement                  int     `json:"frequence_deplacement"`
	AnneesDepuisLaDernierePromotion       int     `json:"annees_depuis_la_derniere_promotion"`
	AnnesSousResponsableActuel            int     `json:"annes_sous_responsable_actuel"`

	Genre                string `json:"genre"`
	StatutMarital        string `json:"statut_marital"`
	Departement          string `json:"departement"`
	Poste                string `json:"poste"`
	DomaineEtude         string `json:"domaine_etude"`
	HeureSupplementaires string `json:"heure_supplementaires"`
}

// Numeric returns the value of a numeric feature by its wire name.
func (r *EmployeeRecord) Numeric(name string) (float64, bool) {
	switch name {
	case "age":
		return float64(r.Age), true
	case "revenu_mensuel":
		return r.RevenuMensuel, true
	case "nombre_experiences_precedentes":
		return float64(r.NombreExperiencesPrecedentes), true
	case "nombre_heures_travailless":
		return float64(r.NombreHeuresTravailless), true
	case "annees_dans_l_entreprise":
		return float64(r.AnneesDansLEntreprise), true
	case "annees_dans_le_poste_actuel":
		return float64(r.AnneesDansLePosteActuel), true
	case "satisfaction_employee_environnement":
		return float64(r.SatisfactionEmployeeEnvironnement), true
	case "satisfaction_employee_nature_travail":
		return float64(r.SatisfactionEmployeeNatureTravail), true
	case "satisfaction_employee_equipe":
		return float64(r.SatisfactionEmployeeEquipe), true
	case "satisfaction_employee_equilibre_pro_perso":
		return float64(r.SatisfactionEmployeeEquilibreProPerso), true
	case "note_evaluation_precedente":
		return float64(r.NoteEvaluationPrecedente), true
	case "note_evaluation_actuelle":
		return float64(r.NoteEvaluationActuelle), true
	case "nombre_participation_pee":
		return float64(r.NombreParticipationPEE), true
	case "nb_formations_suivies":
		return float64(r.NbFormationsSuivies), true
	case "nombre_employee_sous_responsabilite":
		return float64(r.NombreEmployeeSousResponsabilite), true
	case "distance_domicile_travail":
		return float64(r.DistanceDomicileTravail), true
	case "niveau_education":
		return float64(r.NiveauEducation), true
	case "frequence_deplacement":
		return float64(r.FrequenceDeplacement), true
	case "annees_depuis_la_derniere_promotion":
		return float64(r.AnneesDepuisLaDernierePromotion), true
	case "annes_sous_responsable_actuel":
		return float64(r.AnnesSousResponsableActuel), true
	}
	return 0, false
}

// Categorical returns the canonical value of a categorical feature by its wire name.
func (r *EmployeeRecord) Categorical(name string) (string, bool) {
	switch name {
	case "genre":
		return r.Genre, true
	case "statut_marital":
		return r.StatutMarital, true
	case "departement":
		return r.Departement, true
	case "poste":
		return r.Poste, true
	case "domaine_etude":
		return r.DomaineEtude, true
	case "heure_supplementaires":
		return r.HeureSupplementaires, true
	}
	return "", false
}

// Snapshot returns the features used for inference keyed by wire name.
// The employee_id is not a feature and is excluded.
func (r *EmployeeRecord) Snapshot() map[string]any {
	return map[string]any{
		"age":                                       r.Age,
		"revenu_mensuel":                            r.RevenuMensuel,
		"nombre_experiences_precedentes":            r.NombreExperiencesPrecedentes,
		"nombre_heures_travailless":                 r.NombreHeuresTravailless,
		"annees_dans_l_entreprise":                  r.AnneesDansLEntreprise,
		"annees_dans_le_poste_actuel":               r.AnneesDansLePosteActuel,
		"satisfaction_employee_environnement":       r.SatisfactionEmployeeEnvironnement,
		"satisfaction_employee_nature_travail":      r.SatisfactionEmployeeNatureTravail,
		"satisfaction_employee_equipe":              r.SatisfactionEmployeeEquipe,
		"satisfaction_employee_equilibre_pro_perso": r.SatisfactionEmployeeEquilibreProPerso,
		"note_evaluation_precedente":                r.NoteEvaluationPrecedente,
		"note_evaluation_actuelle":                  r.NoteEvaluationActuelle,
		"nombre_participation_pee":                  r.NombreParticipationPEE,
		"nb_formations_suivies":                     r.NbFormationsSuivies,
		"nombre_employee_sous_responsabilite":       r.NombreEmployeeSousResponsabilite,
		"distance_domicile_travail":                 r.DistanceDomicileTravail,
		"niveau_education":                          r.NiveauEducation,
		"frequence_deplacement":                     r.FrequenceDeplacement,
		"annees_depuis_la_derniere_promotion":       r.AnneesDepuisLaDernierePromotion,
		"annes_sous_responsable_actuel":             r.AnnesSousResponsableActuel,
		"genre":                                     r.Genre,
		"statut_marital":                            r.StatutMarital,
		"departement":                               r.Departement,
		"poste":                                     r.Poste,
		"domaine_etude":                             r.DomaineEtude,
		"heure_supplementaires":                     r.HeureSupplementaires,
	}
}
