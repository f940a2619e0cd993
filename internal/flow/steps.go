package flow

import (
	"fmt"

	"github.com/brconnect/leadintake/internal/models"
)

// stepOrder lists every step in visit order. The graph is linear except for
// the branch at StepHasExistingPlan, which may skip the two plan steps.
var stepOrder = []models.Step{
	models.StepName,
	models.StepPhone,
	models.StepTaxID,
	models.StepHasExistingPlan,
	models.StepCurrentPlanName,
	models.StepCurrentPlanCost,
	models.StepMainDifficulty,
	models.StepDone,
}

// Suggested choice lists for the steps that offer quick replies.
var (
	existingPlanChoices   = []string{"Sim", "Não"}
	planNameChoices       = []string{"Unimed", "Bradesco Saúde", "SulAmérica", "Amil", "Outro"}
	mainDifficultyChoices = []string{"Preço alto", "Atendimento ruim", "Pouca cobertura", "Outro"}
)

// Next returns the step that follows the given one. It is a pure function of
// the step and the collected data; StepDone is terminal and idempotent.
func Next(step models.Step, data models.CollectedData) models.Step {
	switch step {
	case models.StepName:
		return models.StepPhone
	case models.StepPhone:
		return models.StepTaxID
	case models.StepTaxID:
		return models.StepHasExistingPlan
	case models.StepHasExistingPlan:
		if data.HasExistingPlan != nil && *data.HasExistingPlan {
			return models.StepCurrentPlanName
		}
		return models.StepMainDifficulty
	case models.StepCurrentPlanName:
		return models.StepCurrentPlanCost
	case models.StepCurrentPlanCost:
		return models.StepMainDifficulty
	case models.StepMainDifficulty:
		return models.StepDone
	default:
		return models.StepDone
	}
}

// Prompt returns the system prompt text for a step plus its suggested
// choices, if any. Texts are parameterized by the collected name.
func Prompt(step models.Step, data models.CollectedData) (string, []string) {
	switch step {
	case models.StepName:
		return "Olá! 👋 Vou te ajudar a encontrar o melhor plano para a sua empresa. Para começar, qual é o seu nome?", nil
	case models.StepPhone:
		return fmt.Sprintf("Prazer, %s! Qual é o seu telefone com DDD?", data.Name), nil
	case models.StepTaxID:
		return "Agora preciso do CNPJ da sua empresa.", nil
	case models.StepHasExistingPlan:
		return "Sua empresa já possui um plano ativo?", existingPlanChoices
	case models.StepCurrentPlanName:
		return "Qual é o plano atual?", planNameChoices
	case models.StepCurrentPlanCost:
		return "Quanto você paga por mês no plano atual?", nil
	case models.StepMainDifficulty:
		return "E qual é a sua maior dificuldade com planos hoje?", mainDifficultyChoices
	default:
		return fmt.Sprintf("Obrigado, %s! Recebemos as suas informações e a nossa equipe vai entrar em contato em breve. 😊", data.Name), nil
	}
}

// Index returns the position of a step along the full sequence, used for the
// progress fraction. Unknown steps map to the terminal index.
func Index(step models.Step) int {
	for i, s := range stepOrder {
		if s == step {
			return i
		}
	}
	return len(stepOrder) - 1
}

// TotalSteps is the number of steps in the full sequence, including done.
func TotalSteps() int {
	return len(stepOrder)
}

// Progress returns the completion fraction index(step)/(totalSteps-1).
func Progress(step models.Step) float64 {
	return float64(Index(step)) / float64(len(stepOrder)-1)
}
