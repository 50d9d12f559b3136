package triage

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("triage not found")
	ErrInvalid  = errors.New("invalid triage request")
)

const (
	SpecialtyGeneral = "Clínica Geral"
	SpecialtyOther   = "Outros"

	ValidationAgree  = "agree"
	ValidationAdjust = "adjust"

	defaultPatientName = "Não informado"
)

// Answers holds the questionnaire answers sent with a triage request. Values
// are usually booleans but are kept as sent.
type Answers map[string]interface{}

// Is reports whether the answer is literally true.
func (a Answers) Is(key string) bool {
	v, ok := a[key].(bool)
	return ok && v
}

// Truthy reports whether the answer is present and not false, zero or empty.
func (a Answers) Truthy(key string) bool {
	switch v := a[key].(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	default:
		return true
	}
}

// Analysis is the outcome of matching symptom text against the rule table.
type Analysis struct {
	Specialty   string `json:"specialty"`
	Confidence  int    `json:"confidence"`
	Explanation string `json:"explanation"`
}

// RedFlags is the checklist of warning signs shown to the physician.
type RedFlags struct {
	NeckStiffness        bool `json:"rigidez_nuca"`
	NeurologicalDeficit  bool `json:"deficit_neurologico"`
	HighFever            bool `json:"febre_alta"`
	TypicalChestPain     bool `json:"dor_toracica_tipica"`
	SevereDyspnea        bool `json:"dispneia_severa"`
	AlteredConsciousness bool `json:"alteracao_consciencia"`
}

// Any reports whether at least one flag is raised.
func (r RedFlags) Any() bool {
	return r.NeckStiffness || r.NeurologicalDeficit || r.HighFever ||
		r.TypicalChestPain || r.SevereDyspnea || r.AlteredConsciousness
}

// Validation records a physician's review of a triage suggestion.
type Validation struct {
	Status   string    `json:"status"`
	Reason   *string   `json:"motivo"`
	DoctorID *string   `json:"medico_id"`
	At       time.Time `json:"at"`
}

// Triage is a stored triage result. JSON field names follow the wire format
// used by the Dr. AI clients.
type Triage struct {
	ID           string      `json:"triagem_id"`
	Specialty    string      `json:"especialidade_sugerida"`
	Confidence   int         `json:"confianca"`
	Alternatives []string    `json:"alternativas"`
	RedFlags     RedFlags    `json:"red_flags_checklist"`
	Questions    []string    `json:"perguntas_residuais"`
	Guidance     []string    `json:"orientacoes_pre_consulta"`
	Explanation  string      `json:"explicacao"`
	PatientName  string      `json:"paciente_nome"`
	Age          *int        `json:"idade,omitempty"`
	Gender       string      `json:"genero,omitempty"`
	SymptomsText string      `json:"symptoms_text"`
	Answers      Answers     `json:"answers"`
	CreatedAt    time.Time   `json:"created_at"`
	Validation   *Validation `json:"validation,omitempty"`
}

// CreateRequest is the body of POST /api/triage/analyze.
type CreateRequest struct {
	SymptomsText string  `json:"symptoms_text"`
	Age          *int    `json:"idade"`
	Gender       string  `json:"genero"`
	Answers      Answers `json:"answers"`
	Context      struct {
		PatientName string `json:"paciente_nome"`
	} `json:"context"`
}

// ValidateRequest is the body of POST /api/triagem/validate.
type ValidateRequest struct {
	TriageID string `json:"triagem_id"`
	Status   string `json:"status"`
	Reason   string `json:"motivo"`
	DoctorID string `json:"medico_id"`
}

// TodayMetrics are the headline counters on the Dr. AI dashboard.
type TodayMetrics struct {
	Triages      int     `json:"triagens"`
	Precision    float64 `json:"precisao"`
	AvgMinutes   float64 `json:"tempoMin"`
	Satisfaction float64 `json:"satisfacao"`
}

// Summary is the response of GET /api/metrics/summary.
type Summary struct {
	Today          TodayMetrics       `json:"today"`
	Specialties    map[string]int     `json:"specialties"`
	AccuracyBySpec map[string]float64 `json:"accuracyBySpec"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// Slots lists bookable start times for a specialty on one day.
type Slots struct {
	Specialty string      `json:"specialty"`
	Date      string      `json:"date"`
	Slots     []time.Time `json:"slots"`
}

type invalidError struct{ msg string }

func (e *invalidError) Error() string { return e.msg }
func (e *invalidError) Unwrap() error { return ErrInvalid }

// invalid returns an error that matches ErrInvalid and carries msg verbatim.
func invalid(msg string) error { return &invalidError{msg: msg} }
