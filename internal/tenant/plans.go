package tenant

// PlanConfig defines limits for a pricing tier.
type PlanConfig struct {
	Plan             Plan
	RateLimitRPM     int
	MaxEmployees     int    // 0 = unlimited
	IncludedCredits  string // signup bonus credited at provisioning; "0" = none
}

// Plans is the hardcoded plan catalogue.
var Plans = map[Plan]PlanConfig{
	PlanFree: {
		Plan:            PlanFree,
		RateLimitRPM:    60,
		MaxEmployees:    2,
		IncludedCredits: "0",
	},
	PlanStarter: {
		Plan:            PlanStarter,
		RateLimitRPM:    300,
		MaxEmployees:    5,
		IncludedCredits: "25.0000",
	},
	PlanGrowth: {
		Plan:            PlanGrowth,
		RateLimitRPM:    1000,
		MaxEmployees:    20,
		IncludedCredits: "100.0000",
	},
	PlanEnterprise: {
		Plan:            PlanEnterprise,
		RateLimitRPM:    5000,
		MaxEmployees:    0,
		IncludedCredits: "500.0000",
	},
}

// DefaultSettingsForPlan returns the Settings populated from a plan's defaults.
func DefaultSettingsForPlan(p Plan) Settings {
	cfg, ok := Plans[p]
	if !ok {
		cfg = Plans[PlanFree]
	}
	return Settings{
		RateLimitRPM: cfg.RateLimitRPM,
		MaxEmployees: cfg.MaxEmployees,
	}
}

// SignupCredits returns the opening bonus for a plan, falling back to the
// deployment default when the plan includes none.
func SignupCredits(p Plan, deploymentDefault string) string {
	cfg, ok := Plans[p]
	if !ok || cfg.IncludedCredits == "" || cfg.IncludedCredits == "0" {
		return deploymentDefault
	}
	return cfg.IncludedCredits
}

// ValidPlan returns true if the plan name is recognised.
func ValidPlan(p Plan) bool {
	_, ok := Plans[p]
	return ok
}
