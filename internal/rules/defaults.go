package rules

import "github.com/sells-group/outreach-cli/internal/model"

// Default returns the built-in rule set used when no rules file is
// configured. It mirrors the shipped rules.yaml and keeps single-company
// smoke runs working out of the box.
func Default() *Rules {
	r := &Rules{
		Tiers: []Tier{
			{
				ID:             "standard",
				MinSignals:     2,
				MaxRecencyDays: 180,
				AllowedScopes:  []model.Scope{model.ScopeCompany, model.ScopeIndustry, model.ScopeContact},
				ReviewRequired: false,
			},
			{
				ID:             "enterprise",
				MinSignals:     3,
				MaxRecencyDays: 120,
				AllowedScopes:  []model.Scope{model.ScopeCompany, model.ScopeIndustry},
				ReviewRequired: true,
			},
		},
		Personas: []Persona{
			{
				ID:         "ops_leader",
				Titles:     []string{"vp operations", "vp of operations", "coo", "chief operating officer", "plant manager", "head of manufacturing"},
				Industries: []string{"manufacturing", "industrial", "logistics"},
			},
			{
				ID:         "it_leader",
				Titles:     []string{"cio", "cto", "vp engineering", "vp of engineering", "head of it", "director of technology"},
				Industries: []string{"software", "technology"},
			},
			{
				ID:         "finance_leader",
				Titles:     []string{"cfo", "chief financial officer", "vp finance", "controller"},
				Industries: []string{"financial services"},
				Regulated:  true,
			},
			{
				ID:        "compliance_officer",
				Titles:    []string{"chief compliance officer", "cco", "compliance director", "head of compliance"},
				Regulated: true,
			},
		},
		SignalRules: []SignalRule{
			{
				ID:      "regulatory_deadline",
				Pattern: `(?i)(compliance deadline|must comply by|effective date|filing deadline|final rule)[^.]{0,120}`,
				Scope:   model.ScopeCompany,
			},
			{
				ID:      "manufacturing_footprint",
				Pattern: `(?i)(new (plant|facility|factory)|expand(s|ed|ing)? (its )?(production|manufacturing|capacity)|opened a [^.]{0,40}facility)[^.]{0,100}`,
				Scope:   model.ScopeCompany,
			},
			{
				ID:      "digital_transformation",
				Pattern: `(?i)(digital transformation|erp (migration|implementation|rollout)|moderniz(e|ing|ation)[^.]{0,40}(systems|infrastructure)|cloud migration)[^.]{0,100}`,
				Scope:   model.ScopeCompany,
			},
			{
				ID:      "leadership_change",
				Pattern: `(?i)(appoint(s|ed)?|nam(es|ed)|hir(es|ed)|promot(es|ed)) [^.]{0,60}(ceo|cfo|coo|cio|cto|chief [a-z]+ officer|president|vp )[^.]{0,80}`,
				Scope:   model.ScopeContact,
			},
			{
				ID:      "funding_event",
				Pattern: `(?i)(rais(es|ed) \$|series [a-e] (round|funding)|secured [^.]{0,30}(funding|investment)|closed a \$[0-9]+[mb])[^.]{0,100}`,
				Scope:   model.ScopeCompany,
			},
			{
				ID:      "industry_regulation",
				Pattern: `(?i)(industry|sector)[^.]{0,60}(regulation|regulatory (change|pressure|scrutiny)|new standard)[^.]{0,100}`,
				Scope:   model.ScopeIndustry,
			},
			{
				ID:      "sec_filing_activity",
				Pattern: `(?i)(10-k|10-q|8-k|s-1|form d|13f)[^.]{0,100}`,
				Scope:   model.ScopeCompany,
			},
		},
		Angles: []Angle{
			{
				ID:          "compliance_readiness",
				Personas:    []string{"compliance_officer", "finance_leader", "ops_leader"},
				SignalTypes: []string{"regulatory_deadline", "sec_filing_activity", "industry_regulation"},
				Priority:    1,
			},
			{
				ID:          "capacity_scaling",
				Personas:    []string{"ops_leader"},
				SignalTypes: []string{"manufacturing_footprint", "funding_event"},
				Priority:    2,
			},
			{
				ID:          "modernization",
				Personas:    []string{"it_leader", "ops_leader"},
				SignalTypes: []string{"digital_transformation", "funding_event"},
				Priority:    3,
			},
			{
				ID:          "new_leader_agenda",
				Personas:    []string{"ops_leader", "it_leader", "finance_leader"},
				SignalTypes: []string{"leadership_change"},
				Priority:    4,
			},
		},
		Offers: []Offer{
			{
				ID:               "compliance_assessment",
				CompatibleAngles: []string{"compliance_readiness"},
				Personas:         []string{"compliance_officer", "finance_leader", "ops_leader"},
				Priority:         1,
				Aliases:          []string{"SKU-CA-100", "assess_compliance"},
			},
			{
				ID:               "ops_automation_pilot",
				CompatibleAngles: []string{"capacity_scaling", "modernization"},
				Personas:         []string{"ops_leader", "it_leader"},
				Priority:         2,
				Aliases:          []string{"SKU-OA-210", "pilot_ops"},
			},
			{
				ID:               "exec_briefing",
				CompatibleAngles: []string{"new_leader_agenda", "modernization", "compliance_readiness"},
				Personas:         []string{"ops_leader", "it_leader", "finance_leader", "compliance_officer"},
				Priority:         3,
				Aliases:          []string{"SKU-EB-050"},
			},
		},
	}

	// The built-in set is code, not input: a mistake here is a programmer
	// error, so panic instead of returning one more error to thread.
	if err := r.compile(); err != nil {
		panic(err)
	}
	if err := r.Validate(); err != nil {
		panic(err)
	}
	tokens, err := BuildTokenResolver(r.Offers)
	if err != nil {
		panic(err)
	}
	r.tokens = tokens
	return r
}
