package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages feature toggles with optional gradual rollout.
// Flags gate the optional surfaces of the stats hub so a broken live feed or
// chat upstream can be switched off without a deploy.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Per-user overrides, for testing and support.
	userOverrides map[string]map[string]bool
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100); users are bucketed by ID hash.
	RolloutPercent int
}

// Predefined feature flag names.
const (
	// Stats surfaces
	FeatureLiveFeed    = "stats.live_feed"    // websocket snapshot broadcast
	FeatureLeaderboard = "stats.leaderboard"  // ranked board endpoint
	FeaturePeriodStats = "stats.period_stats" // day/all windows + progression

	// Export surfaces
	FeatureExportJSON = "export.json" // snapshot document export/import
	FeatureExportCSV  = "export.csv"  // session history CSV

	// Chat surfaces
	FeatureTutorChat   = "chat.tutor"         // stats-aware tutor chat
	FeatureChatContext = "chat.stats_context" // inject performance block
)

// LoadFeatureFlags builds the flag set with defaults, then applies
// environment overrides of the form FEATURE_<NAME>=true/false.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}
	ff.initializeDefaults()
	ff.loadFromEnvironment()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	defaults := []*Feature{
		{Name: FeatureLiveFeed, Description: "Websocket snapshot broadcast", Enabled: true, RolloutPercent: 100},
		{Name: FeatureLeaderboard, Description: "Ranked board endpoint", Enabled: true, RolloutPercent: 100},
		{Name: FeaturePeriodStats, Description: "Day/all period windows", Enabled: true, RolloutPercent: 100},
		{Name: FeatureExportJSON, Description: "Snapshot document export", Enabled: true, RolloutPercent: 100},
		{Name: FeatureExportCSV, Description: "Session history CSV", Enabled: true, RolloutPercent: 100},
		{Name: FeatureTutorChat, Description: "Stats-aware tutor chat", Enabled: true, RolloutPercent: 100},
		{Name: FeatureChatContext, Description: "Performance context in chat prompts", Enabled: true, RolloutPercent: 100},
	}
	for _, f := range defaults {
		ff.features[f.Name] = f
	}
}

// loadFromEnvironment applies FEATURE_STATS_LIVE_FEED=false style overrides.
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if val, ok := os.LookupEnv(envKey); ok {
			if parsed, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = parsed
			}
		}
	}
}

func featureNameToEnvKey(name string) string {
	key := strings.NewReplacer(".", "_", "-", "_").Replace(name)
	return "FEATURE_" + strings.ToUpper(key)
}

// IsEnabled evaluates the flag for a user. Unknown flags are disabled.
func (ff *FeatureFlags) IsEnabled(featureName, userID string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if overrides, ok := ff.userOverrides[userID]; ok {
		if enabled, ok := overrides[featureName]; ok {
			return enabled
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}
	if feature.RolloutPercent >= 100 {
		return true
	}
	return inRollout(userID, featureName, feature.RolloutPercent)
}

// inRollout buckets the user deterministically into the rollout percentage.
func inRollout(userID, featureName string, percent int) bool {
	if percent <= 0 {
		return false
	}
	h := fnv.New32a()
	h.Write([]byte(userID))
	h.Write([]byte(featureName))
	return int(h.Sum32()%100) < percent
}

// SetUserOverride forces a flag value for one user.
func (ff *FeatureFlags) SetUserOverride(userID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.userOverrides[userID] == nil {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// SetRolloutPercent adjusts a flag's rollout at runtime.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if feature, ok := ff.features[featureName]; ok {
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		feature.RolloutPercent = percent
	}
}

// All returns a copy of the current flag set.
func (ff *FeatureFlags) All() map[string]Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	out := make(map[string]Feature, len(ff.features))
	for name, f := range ff.features {
		out[name] = *f
	}
	return out
}
