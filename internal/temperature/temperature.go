// Package temperature maps a persona's engagement score to a discrete
// hot/warm/cold tier and the matching persona-qualified CRM tag.
package temperature

import (
	"github.com/leadline-ai/switchboard/internal/config"
	"github.com/leadline-ai/switchboard/internal/model"
)

// Classification is a tier plus the tag the action emitter should apply.
type Classification struct {
	Tier model.Temperature
	Tag  string
}

// Classify cuts the engagement score using the persona's configured
// thresholds. Thresholds are per persona, not global, since personas have
// different natural score distributions.
func Classify(persona model.Persona, signals model.IntentSignals, cfg config.Config) Classification {
	pc := cfg.Personas[persona]

	tier := model.TemperatureCold
	switch {
	case signals.Engagement >= pc.HotThreshold:
		tier = model.TemperatureHot
	case signals.Engagement >= pc.WarmThreshold:
		tier = model.TemperatureWarm
	}

	return Classification{
		Tier: tier,
		Tag:  model.TemperatureTag(tier, persona),
	}
}
