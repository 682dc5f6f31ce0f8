// Package safety implements the content safety layer: heuristic PHI redaction,
// crisis-lexicon detection, and the policy text that drives both.
package safety

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPersona is the system instruction every conversation starts with.
const DefaultPersona = `You are "Phillip", a warm, evidence-informed mental health AI.
- Be supportive, concise, and non-judgmental.
- Ask clarifying questions when helpful.
- Never claim to be a human or licensed clinician.
- Include brief psychoeducation when appropriate.
- Avoid diagnosing; suggest possibilities and next steps.
- If you detect imminent risk (suicide/self-harm, harm to others, severe medical emergency), respond with a crisis safety message and urge contacting local emergency services or hotlines immediately.`

// DefaultEvaluationAddendum is appended to the persona in evaluation mode.
const DefaultEvaluationAddendum = "Focus on structured intake."

// DefaultCrisisScript replaces the reply whenever crisis language is detected.
const DefaultCrisisScript = `I’m really glad you told me. Your safety is the most important thing right now.
If you’re in immediate danger or think you might act on these thoughts, please call your local emergency number (like 911 in the U.S.) or go to the nearest emergency room.
You can also contact the 988 Suicide & Crisis Lifeline (call or text 988 in the U.S.).
If you’d like, I can help you create a short safety plan and identify someone you trust to reach out to.`

// DefaultCrisisTerms is the minimal crisis lexicon.
var DefaultCrisisTerms = []string{
	"suicide",
	"kill myself",
	"harm myself",
	"self-harm",
	"overdose",
	"kill someone",
	"hurt someone",
	"end it all",
}

// Policy is the fixed text configuration of the safety layer. It is loaded
// once at startup and must not be modified afterwards.
type Policy struct {
	Persona            string   `koanf:"persona"`
	EvaluationAddendum string   `koanf:"evaluation_addendum"`
	CrisisTerms        []string `koanf:"crisis_terms"`
	CrisisScript       string   `koanf:"crisis_script"`
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() Policy {
	terms := make([]string, len(DefaultCrisisTerms))
	copy(terms, DefaultCrisisTerms)
	return Policy{
		Persona:            DefaultPersona,
		EvaluationAddendum: DefaultEvaluationAddendum,
		CrisisTerms:        terms,
		CrisisScript:       DefaultCrisisScript,
	}
}

// LoadPolicy reads a YAML policy file over the defaults. An empty path yields
// the default policy. Keys missing from the file keep their default value.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Policy{}, fmt.Errorf("failed to load safety policy %s: %w", path, err)
	}
	var f Policy
	if err := k.Unmarshal("", &f); err != nil {
		return Policy{}, fmt.Errorf("failed to decode safety policy: %w", err)
	}
	if k.Exists("persona") {
		p.Persona = f.Persona
	}
	if k.Exists("evaluation_addendum") {
		p.EvaluationAddendum = f.EvaluationAddendum
	}
	if k.Exists("crisis_terms") {
		p.CrisisTerms = f.CrisisTerms
	}
	if k.Exists("crisis_script") {
		p.CrisisScript = f.CrisisScript
	}

	if err := p.validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p *Policy) validate() error {
	if strings.TrimSpace(p.Persona) == "" {
		return errors.New("safety policy: persona cannot be empty")
	}
	if strings.TrimSpace(p.CrisisScript) == "" {
		return errors.New("safety policy: crisis_script cannot be empty")
	}
	terms := p.CrisisTerms[:0]
	for _, t := range p.CrisisTerms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		return errors.New("safety policy: crisis_terms cannot be empty")
	}
	p.CrisisTerms = terms
	return nil
}
