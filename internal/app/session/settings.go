package session

import (
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/19radio/internal/app/filter"
	"github.com/osa030/19radio/internal/app/priority"
	"github.com/osa030/19radio/internal/app/radio"
	"github.com/osa030/19radio/internal/infra/config"
)

// RadioSettings converts the configuration into scheduler settings.
func RadioSettings(cfg *config.Config) radio.Settings {
	return radio.Settings{
		QueueSize:      cfg.Queue.MaxSize,
		HistoryLength:  cfg.Queue.HistoryLength,
		Tolerance:      cfg.Queue.Tolerance,
		Priority:       PrioritySettings(cfg.Priority),
		LeadIn:         cfg.Playback.LeadIn(),
		PauseExpiry:    cfg.Playback.PauseExpiry(),
		WithdrawAfter:  cfg.Presence.WithdrawAfter(),
		Normalize:      cfg.Playback.NormalizeEnabled(),
		TargetLoudness: cfg.Playback.TargetLoudness,
		MaxPreferences: cfg.Preferences.MaxKeywords,
		MaxVolume:      cfg.Playback.MaxVolume,
		DefaultVolume:  cfg.Playback.DefaultVolume,
	}
}

// PrioritySettings converts the scoring section of the configuration.
func PrioritySettings(c config.PriorityConfig) priority.Settings {
	mods := make([]priority.KeywordModifier, len(c.GlobalKeywords))
	for i, m := range c.GlobalKeywords {
		mods[i] = priority.KeywordModifier{
			Keyword:    m.Keyword,
			Multiplier: m.Multiplier,
			Bonus:      m.Bonus,
			From:       m.From,
			Until:      m.Until,
		}
	}
	return priority.Settings{
		Base:                   c.Base,
		JitterMin:              c.JitterMin,
		JitterMax:              c.JitterMax,
		GlobalRankMultiplier:   c.GlobalRankMultiplier,
		ListenerRankMultiplier: c.ListenerRankMultiplier,
		QueueBonus:             c.QueueBonus,
		QueuePositionBonus:     c.QueuePositionBonus,
		Length: priority.LengthSettings{
			IdealMin: time.Duration(c.Length.IdealMinSec) * time.Second,
			IdealMax: time.Duration(c.Length.IdealMaxSec) * time.Second,
			Cutoff:   time.Duration(c.Length.CutoffSec) * time.Second,
			Bonus:    c.Length.Bonus,
		},
		LastPlayed:               recency(c.LastPlayed),
		LastRequested:            recency(c.LastRequested),
		PreferenceHighMultiplier: c.PreferenceHighMultiplier,
		PreferenceLowMultiplier:  c.PreferenceLowMultiplier,
		GlobalKeywords:           mods,
	}
}

func recency(c config.RecencyConfig) priority.RecencySettings {
	return priority.RecencySettings{
		Window:     time.Duration(c.WindowMin) * time.Minute,
		Penalty:    c.Penalty,
		Multiplier: c.Multiplier,
	}
}

// BuildFilters builds the request filter chain. The accepting filter always
// runs first; the enabled filters follow in name order. Enabling a filter
// that is not registered is an error.
func BuildFilters(cfg *config.Config) (*filter.Chain, error) {
	names := make([]string, 0, len(cfg.Filters))
	for name := range cfg.Filters {
		if cfg.IsFilterEnabled(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	chain := filter.NewChain(&filter.AcceptingFilter{})
	for _, name := range names {
		f, ok := filter.New(name)
		if !ok {
			return nil, errors.Newf("filter %s is not registered", name)
		}
		settings := cfg.Filters[name].Settings
		if name == "demand_filter" && settings["display_names"] == nil {
			settings = withDisplayNames(settings, cfg.Admin.DisplayNames)
		}
		if err := f.ValidateConfig(settings); err != nil {
			return nil, errors.Wrapf(err, "filter %s", name)
		}
		chain.Append(f)
	}
	return chain, nil
}

// withDisplayNames copies settings adding the admin display names.
func withDisplayNames(settings map[string]any, names []string) map[string]any {
	out := make(map[string]any, len(settings)+1)
	for k, v := range settings {
		out[k] = v
	}
	list := make([]any, len(names))
	for i, n := range names {
		list[i] = n
	}
	out["display_names"] = list
	return out
}
