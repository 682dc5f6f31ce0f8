// Package prompt builds the instruction set sent to the language model.
package prompt

import (
	"github.com/actualpc/phillip-therapy/internal/model"
	"github.com/actualpc/phillip-therapy/internal/safety"
)

// Assembler produces the system message for a chat mode.
type Assembler struct {
	persona    string
	evaluation string
}

// NewAssembler creates an assembler from the safety policy.
func NewAssembler(p safety.Policy) *Assembler {
	return &Assembler{
		persona:    p.Persona,
		evaluation: p.EvaluationAddendum,
	}
}

// System returns the system message for mode.
func (a *Assembler) System(mode model.Mode) model.ChatMessage {
	content := a.persona
	if mode == model.ModeEvaluation && a.evaluation != "" {
		content += "\n" + a.evaluation
	}
	return model.ChatMessage{Role: model.RoleSystem, Content: content}
}

// Assemble prepends the system message to msgs. msgs should already be redacted.
func (a *Assembler) Assemble(mode model.Mode, msgs []model.ChatMessage) []model.ChatMessage {
	out := make([]model.ChatMessage, 0, len(msgs)+1)
	out = append(out, a.System(mode))
	return append(out, msgs...)
}
