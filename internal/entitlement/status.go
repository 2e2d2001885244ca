package entitlement

// Status is the single discriminator for what an installation is entitled
// to. It is never inferred from the presence or absence of other fields; only
// verification, simulation, or reset operations change it.
type Status string

const (
	StatusFree       Status = "free"
	StatusTrial      Status = "trial"
	StatusPro        Status = "pro"
	StatusProMonthly Status = "pro_monthly"
	StatusProYearly  Status = "pro_yearly"
	StatusRestricted Status = "restricted"
)

// IsPaid reports whether the status unlocks the pro feature set
func (s Status) IsPaid() bool {
	switch s {
	case StatusPro, StatusTrial, StatusProMonthly, StatusProYearly:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status value
func (s Status) Valid() bool {
	switch s {
	case StatusFree, StatusTrial, StatusPro, StatusProMonthly, StatusProYearly, StatusRestricted:
		return true
	default:
		return false
	}
}

// Tier returns the display tier label for the status
func (s Status) Tier() string {
	if s.IsPaid() {
		return "Pro"
	}
	return "Free"
}

// PlanID maps the status onto the authority's plan identifiers. Bare "pro"
// defaults to the monthly plan.
func (s Status) PlanID() string {
	switch s {
	case StatusTrial:
		return "trial"
	case StatusPro, StatusProMonthly:
		return "pro_monthly"
	case StatusProYearly:
		return "pro_yearly"
	default:
		return "free"
	}
}

// SubscriptionState maps the status onto the authority's subscription
// lifecycle states.
func (s Status) SubscriptionState() string {
	if s == StatusTrial {
		return "trialing"
	}
	return "active"
}

// FeatureID identifies a gateable capability.
type FeatureID string

// Free-set features: always accessible regardless of status.
const (
	FeatureBasicScan          FeatureID = "basic_scan"
	FeatureManualOptimization FeatureID = "manual_optimization"
	FeatureCommunityStats     FeatureID = "community_stats"
	FeatureBasicAppSupport    FeatureID = "basic_app_support"
	FeatureDashboardAccess    FeatureID = "dashboard_access"
	FeatureSettingsAccess     FeatureID = "settings_access"
)

// Pro-set features: accessible iff the status is a paid tier.
const (
	FeatureUnlimitedScans         FeatureID = "unlimited_scans"
	FeatureMultipleOptimizations  FeatureID = "multiple_optimizations"
	FeatureAutoOptimization       FeatureID = "auto_optimization"
	FeatureRealTimeMonitoring     FeatureID = "real_time_monitoring"
	FeatureAdvancedScanning       FeatureID = "advanced_scanning"
	FeatureAdvancedFeatures       FeatureID = "advanced_features"
	FeatureAllAppSupport          FeatureID = "all_app_support"
	FeatureBackgroundOptimization FeatureID = "background_optimization"
	FeatureDetailedAnalytics      FeatureID = "detailed_analytics"
	FeaturePrioritySupport        FeatureID = "priority_support"
	FeatureCustomRules            FeatureID = "custom_rules"
)

var freeFeatures = map[FeatureID]struct{}{
	FeatureBasicScan:          {},
	FeatureManualOptimization: {},
	FeatureCommunityStats:     {},
	FeatureBasicAppSupport:    {},
	FeatureDashboardAccess:    {},
	FeatureSettingsAccess:     {},
}

var proFeatures = map[FeatureID]struct{}{
	FeatureUnlimitedScans:         {},
	FeatureMultipleOptimizations:  {},
	FeatureAutoOptimization:       {},
	FeatureRealTimeMonitoring:     {},
	FeatureAdvancedScanning:       {},
	FeatureAdvancedFeatures:       {},
	FeatureAllAppSupport:          {},
	FeatureBackgroundOptimization: {},
	FeatureDetailedAnalytics:      {},
	FeaturePrioritySupport:        {},
	FeatureCustomRules:            {},
}

// upgradePrompts holds the per-feature upgrade messaging surfaced when a
// gated feature is denied.
var upgradePrompts = map[FeatureID]string{
	FeatureUnlimitedScans:         "Upgrade to Pro for unlimited memory optimizations every day",
	FeatureMultipleOptimizations:  "Upgrade to Pro to fix all performance issues at once with one click",
	FeatureAutoOptimization:       "Upgrade to Pro to enable automatic memory optimization that runs in the background",
	FeatureAllAppSupport:          "Unlock 240+ more apps including Adobe Creative Suite, development tools, and specialized software",
	FeatureRealTimeMonitoring:     "Get real-time memory monitoring with instant alerts when your Mac needs attention",
	FeatureAdvancedScanning:       "Access deep system scanning that finds hidden memory leaks and performance bottlenecks",
	FeatureAdvancedFeatures:       "Unlock advanced settings, custom rules, and professional optimization controls",
	FeatureBackgroundOptimization: "Let Memory Monster work silently in the background, keeping your Mac fast 24/7",
	FeatureDetailedAnalytics:      "View detailed performance analytics and optimization history",
	FeaturePrioritySupport:        "Get priority email support and feature requests",
}

const defaultUpgradePrompt = "Upgrade to Memory Monster Pro to unlock this premium feature"

// UpgradePrompt returns the upsell copy for a gated feature
func UpgradePrompt(feature FeatureID) string {
	if prompt, ok := upgradePrompts[feature]; ok {
		return prompt
	}
	return defaultUpgradePrompt
}
