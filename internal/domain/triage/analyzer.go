package triage

import (
	"fmt"
	"regexp"
	"strings"
)

type boost struct {
	source string
	re     *regexp.Regexp
	value  int
}

type rule struct {
	re         *regexp.Regexp
	specialty  string
	confidence int
	boosts     []boost
}

func newBoost(source string, value int) boost {
	return boost{source: source, re: regexp.MustCompile("(?i)" + source), value: value}
}

func newRule(pattern, specialty string, confidence int, boosts ...boost) rule {
	return rule{
		re:         regexp.MustCompile("(?i)" + pattern),
		specialty:  specialty,
		confidence: confidence,
		boosts:     boosts,
	}
}

// rules is evaluated in order; the first match wins.
var rules = []rule{
	newRule(`(dor de cabeça|cefaleia|enxaqueca|migra[ín]ea)`, "Neurologia", 75,
		newBoost(`(fotofobia|pior com luz)`, 8),
		newBoost(`(náusea|vômito)`, 5),
		newBoost(`há mais de (2|3|4|5) dias`, 6),
	),
	newRule(`(dor no peito|dor torácica|peito|coração)`, "Cardiologia", 70,
		newBoost(`(falta de ar|dispneia)`, 10),
		newBoost(`(suor frio|sudorese)`, 7),
	),
	newRule(`(falta de ar|dispneia|tosse)`, "Pneumologia", 72,
		newBoost(`(febre)`, 8),
		newBoost(`(chiado|sibilo)`, 6),
	),
	newRule(`(dor abdominal|dor na barriga|abdome|estômago)`, "Gastroenterologia", 74,
		newBoost(`(náusea|vômito)`, 6),
		newBoost(`(diarreia)`, 5),
	),
	newRule(`(dor nas costas|lombar|coluna)`, "Ortopedia", 76,
		newBoost(`(irradiação|irradia)`, 5),
	),
	newRule(`(pele|mancha|lesão|coceira|prurido)`, "Dermatologia", 80,
		newBoost(`(vermelhidão|eritema)`, 6),
	),
}

const (
	minConfidence     = 5
	maxConfidence     = 95
	generalConfidence = 65
	maxCriteria       = 2
)

// Analyze suggests a specialty for the symptom text. Confidence is always
// within [5, 95].
func Analyze(text string, answers Answers) Analysis {
	text = strings.ToLower(text)

	var matched *rule
	for i := range rules {
		if rules[i].re.MatchString(text) {
			matched = &rules[i]
			break
		}
	}
	if matched == nil {
		return Analysis{
			Specialty:   SpecialtyGeneral,
			Confidence:  generalConfidence,
			Explanation: "Sintomas gerais - triagem para avaliação clínica inicial",
		}
	}

	confidence := matched.confidence
	var criteria []string
	for _, b := range matched.boosts {
		if b.re.MatchString(text) {
			confidence += b.value
			criteria = append(criteria, b.source)
		}
	}

	if matched.specialty == "Neurologia" {
		if answers.Is("febre") {
			confidence -= 3
		}
		if answers.Is("rigidez_nuca") {
			confidence += 10
		}
	}

	explanation := fmt.Sprintf("Padrão sintomático típico para %s", matched.specialty)
	if len(criteria) > 0 {
		if len(criteria) > maxCriteria {
			criteria = criteria[:maxCriteria]
		}
		explanation = "Critérios: " + strings.Join(criteria, ", ")
	}

	return Analysis{
		Specialty:   matched.specialty,
		Confidence:  clamp(confidence, minConfidence, maxConfidence),
		Explanation: explanation,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var (
	typicalChestPain = regexp.MustCompile(`(?i)(dor no peito|opressão torácica)`)
	severeDyspnea    = regexp.MustCompile(`(?i)(falta de ar severa|muito cansado)`)
)

// DetectRedFlags combines questionnaire answers with text patterns.
func DetectRedFlags(text string, answers Answers) RedFlags {
	return RedFlags{
		NeckStiffness:        answers.Truthy("rigidez_nuca"),
		NeurologicalDeficit:  answers.Truthy("deficit_neurologico"),
		HighFever:            answers.Truthy("febre_alta"),
		TypicalChestPain:     typicalChestPain.MatchString(text),
		SevereDyspnea:        severeDyspnea.MatchString(text),
		AlteredConsciousness: answers.Truthy("alteracao_consciencia"),
	}
}

var questionsBySpecialty = map[string][]string{
	"Neurologia": {
		"Já apresentou episódios similares anteriormente?",
		"A dor piora com movimentos da cabeça?",
		"Há presença de aura visual antes da dor?",
	},
	"Cardiologia": {
		"A dor irradia para braço, pescoço ou mandíbula?",
		"Piora com esforço físico?",
		"Há histórico familiar de problemas cardíacos?",
	},
	"Gastroenterologia": {
		"A dor tem relação com alimentação?",
		"Há mudanças no hábito intestinal?",
		"Uso recente de medicamentos?",
	},
}

var defaultQuestions = []string{
	"Quando os sintomas iniciaram?",
	"Há fatores que pioram ou melhoram?",
	"Uso atual de medicações?",
}

var guidanceBySpecialty = map[string][]string{
	"Neurologia": {
		"Manter ambiente com pouca luminosidade",
		"Hidratação adequada",
		"Evitar jejum prolongado",
		"Anotar horários e intensidade das crises",
	},
	"Cardiologia": {
		"Evitar esforços físicos até avaliação",
		"Monitorar pressão arterial se possível",
		"Jejum de 8h se exames forem necessários",
	},
	"Gastroenterologia": {
		"Dieta leve e fracionada",
		"Hidratação oral",
		"Evitar medicamentos sem orientação",
		"Anotar características de evacuações se relevante",
	},
}

var defaultGuidance = []string{
	"Manter medicações habituais",
	"Hidratação adequada",
	"Repouso relativo",
	"Anotar evolução dos sintomas",
}

// ResidualQuestions returns the follow-up questions for a specialty.
func ResidualQuestions(specialty string) []string {
	return pick(questionsBySpecialty, specialty, defaultQuestions)
}

// PreConsultationGuidance returns what the patient should do before the visit.
func PreConsultationGuidance(specialty string) []string {
	return pick(guidanceBySpecialty, specialty, defaultGuidance)
}

func pick(m map[string][]string, key string, fallback []string) []string {
	src, ok := m[key]
	if !ok {
		src = fallback
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// Alternatives lists the fallback specialties offered next to the suggestion.
func Alternatives(specialty string) []string {
	if specialty == SpecialtyGeneral {
		return []string{"Medicina da Família"}
	}
	if specialty == "Neurologia" {
		return []string{SpecialtyGeneral, "Medicina Interna"}
	}
	return []string{SpecialtyGeneral, "Medicina da Família"}
}
