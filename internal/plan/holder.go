package plan

import (
	"errors"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// CatalogHolder keeps the current catalog behind an atomic.Value so reads
// from request paths never block a reload.
type CatalogHolder struct {
	current atomic.Value // holds Catalog
}

// NewCatalogHolder loads the catalog from path and watches it for changes.
// An empty path means compiled defaults only.
func NewCatalogHolder(path string, log *zap.Logger) (*CatalogHolder, error) {
	h := &CatalogHolder{}
	h.current.Store(DefaultCatalog())

	if path == "" {
		return h, nil
	}

	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Warn("plan catalog file not found, using defaults", zap.String("path", path))
			return h, nil
		}
		return nil, err
	}

	if err := h.reload(v, log); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if err := h.reload(v, log); err != nil {
			log.Error("plan catalog reload failed, keeping previous catalog",
				zap.String("path", e.Name), zap.Error(err))
		}
	})
	v.WatchConfig()

	return h, nil
}

func (h *CatalogHolder) reload(v *viper.Viper, log *zap.Logger) error {
	var cat Catalog
	if err := v.Unmarshal(&cat); err != nil {
		return err
	}
	merged := mergeWithDefaults(cat)
	h.current.Store(merged)
	log.Info("plan catalog loaded",
		zap.Int("plans", len(merged.Plans)),
		zap.Int("packages", len(merged.Packages)),
	)
	return nil
}

// Current returns the active catalog.
func (h *CatalogHolder) Current() Catalog {
	return h.current.Load().(Catalog)
}

// mergeWithDefaults fills tiers missing from the file so every known tier
// always has an allowance.
func mergeWithDefaults(cat Catalog) Catalog {
	defaults := DefaultCatalog()
	if len(cat.Plans) == 0 {
		cat.Plans = defaults.Plans
	} else {
		seen := map[Tier]bool{}
		for _, p := range cat.Plans {
			seen[p.Tier] = true
		}
		for _, p := range defaults.Plans {
			if !seen[p.Tier] {
				cat.Plans = append(cat.Plans, p)
			}
		}
	}
	if len(cat.Packages) == 0 {
		cat.Packages = defaults.Packages
	}
	return cat
}
