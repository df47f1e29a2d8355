package domain

import (
	"regexp"
	"strings"
	"time"
)

// MarketTypeRule asigna un tipo de mercado cuando el slug o el título contienen
// alguna de las keywords (o el slug empieza por alguno de los prefijos).
type MarketTypeRule struct {
	Type     string   `yaml:"type"`
	Prefixes []string `yaml:"prefixes"`
	Keywords []string `yaml:"keywords"`
}

// DefaultMarketTypeRules devuelve la tabla de reglas de tipo de mercado.
// El orden importa: gana la primera regla que encaja.
func DefaultMarketTypeRules() []MarketTypeRule {
	return []MarketTypeRule{
		{Type: "nba", Prefixes: []string{"nba-"}, Keywords: []string{"nba"}},
		{Type: "nfl", Prefixes: []string{"nfl-"}, Keywords: []string{"nfl", "super bowl"}},
		{Type: "mlb", Prefixes: []string{"mlb-"}, Keywords: []string{"mlb", "world series"}},
		{Type: "nhl", Prefixes: []string{"nhl-"}, Keywords: []string{"nhl", "stanley cup"}},
		{Type: "cfb", Prefixes: []string{"cfb-", "ncaaf-"}, Keywords: []string{"ncaaf"}},
		{Type: "cbb", Prefixes: []string{"cbb-", "ncaab-"}, Keywords: []string{"ncaab", "march madness"}},
		{Type: "soccer", Prefixes: []string{"epl-", "lal-", "ucl-", "mls-", "sea-", "bun-", "fl1-"},
			Keywords: []string{"premier league", "champions league", "la liga", "fc "}},
		{Type: "mma", Prefixes: []string{"ufc-"}, Keywords: []string{"ufc", "mma"}},
		{Type: "tennis", Prefixes: []string{"atp-", "wta-"}, Keywords: []string{"wimbledon", "us open"}},
		{Type: "esports", Prefixes: []string{"cs2-", "lol-", "dota2-", "val-"}, Keywords: []string{"counter-strike", "league of legends"}},
		{Type: "politics", Keywords: []string{"election", "president", "senate", "governor", "trump", "parliament"}},
		{Type: "crypto", Keywords: []string{"bitcoin", "btc", "ethereum", "eth ", "solana", "crypto"}},
	}
}

// MarketClassifier aísla el matching de strings usado para clasificar mercados,
// de forma que las reglas se puedan cambiar y testear sin tocar el pipeline.
type MarketClassifier interface {
	// IsGambling devuelve true para mercados de corta duración tipo "up or down".
	IsGambling(slug, title string) bool
	// MarketType devuelve el tipo de mercado ("nba", "politics"...) u "other".
	MarketType(slug, title string) string
	// ResolveOutcome traduce Yes/No a nombres de equipo si el título es "<A> vs <B>".
	ResolveOutcome(title, outcome string, index int) string
}

// RuleClassifier implementa MarketClassifier con una tabla de reglas explícita.
type RuleClassifier struct {
	gambling []string
	types    []MarketTypeRule
}

// NewRuleClassifier crea un clasificador con las keywords y reglas dadas.
func NewRuleClassifier(gamblingKeywords []string, types []MarketTypeRule) *RuleClassifier {
	kw := make([]string, 0, len(gamblingKeywords))
	for _, k := range gamblingKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kw = append(kw, k)
		}
	}
	return &RuleClassifier{gambling: kw, types: types}
}

// IsGambling busca las keywords como substring del slug o del título.
// Las keywords cortas tipo "5m" solo cuentan como token completo, para no
// marcar "5m" dentro de "15m" o de otras palabras.
func (c *RuleClassifier) IsGambling(slug, title string) bool {
	s := strings.ToLower(slug)
	t := strings.ToLower(title)
	tokens := strings.FieldsFunc(s+" "+t, func(r rune) bool {
		return r == '-' || r == '_' || r == ' ' || r == ':' || r == ','
	})
	for _, kw := range c.gambling {
		if len(kw) <= 3 && !strings.Contains(kw, " ") {
			for _, tok := range tokens {
				if tok == kw {
					return true
				}
			}
			continue
		}
		if strings.Contains(s, kw) || strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

// MarketType aplica la tabla de reglas en orden.
func (c *RuleClassifier) MarketType(slug, title string) string {
	s := strings.ToLower(slug)
	t := strings.ToLower(title)
	for _, r := range c.types {
		for _, p := range r.Prefixes {
			if strings.HasPrefix(s, strings.ToLower(p)) {
				return r.Type
			}
		}
		for _, kw := range r.Keywords {
			kw = strings.ToLower(kw)
			if strings.Contains(t, kw) || strings.Contains(s, strings.TrimSpace(kw)) {
				return r.Type
			}
		}
	}
	return "other"
}

var versusRe = regexp.MustCompile(`(?i)^\s*(.+?)\s+(?:vs\.?|v\.?|@)\s+(.+?)\s*(?:[:?(\[].*)?$`)

// ParseTeams extrae los dos equipos de un título "<A> vs <B>".
func ParseTeams(title string) (a, b string, ok bool) {
	m := versusRe.FindStringSubmatch(title)
	if m == nil {
		return "", "", false
	}
	a, b = strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	if a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}

// ResolveOutcome devuelve el nombre del equipo para mercados Yes/No tipo "A vs B":
// Yes → A, No → B. El resto de outcomes se devuelven tal cual; si la etiqueta
// viene vacía se usa el índice (0 = Yes).
func (c *RuleClassifier) ResolveOutcome(title, outcome string, index int) string {
	if strings.TrimSpace(outcome) == "" {
		outcome = "Yes"
		if index == 1 {
			outcome = "No"
		}
	}
	o := strings.TrimSpace(outcome)
	if !strings.EqualFold(o, "yes") && !strings.EqualFold(o, "no") {
		return o
	}
	a, b, ok := ParseTeams(title)
	if !ok {
		return o
	}
	if strings.EqualFold(o, "yes") {
		return a
	}
	return b
}

var slugDateRe = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)

// EventDateFromSlug extrae la fecha codificada en el slug (p.ej. "nba-lal-bos-2025-01-15").
// Devuelve la fecha a la hora UTC estimada de inicio.
func EventDateFromSlug(slug string, startHourUTC int) (time.Time, bool) {
	m := slugDateRe.FindString(slug)
	if m == "" {
		return time.Time{}, false
	}
	d, err := time.Parse("2006-01-02", m)
	if err != nil {
		return time.Time{}, false
	}
	return d.Add(time.Duration(startHourUTC) * time.Hour).UTC(), true
}
