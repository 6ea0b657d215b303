package model

// Temperature is a discrete engagement tier derived from a persona's intent
// and engagement scoring.
type Temperature string

const (
	TemperatureHot  Temperature = "hot"
	TemperatureWarm Temperature = "warm"
	TemperatureCold Temperature = "cold"
)

// TemperatureTag is the persona-qualified CRM tag for a tier,
// e.g. "Warm-Seller". Hot tags are persona-specific, not global.
func TemperatureTag(t Temperature, p Persona) string {
	return string(t[0]-'a'+'A') + string(t[1:]) + "-" + titlePersona(p)
}
