package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlanCaps maps a plan name to its default monthly posting cap.
type PlanCaps map[string]int64

func DefaultPlanCaps() PlanCaps {
	return PlanCaps{
		"starter":  100,
		"pro":      500,
		"firm":     2000,
		"trialing": 25,
		"canceled": 0,
	}
}

// PlanCapsHolder keeps the current plan caps and swaps them when plans.yml changes.
type PlanCapsHolder struct {
	current atomic.Value // holds PlanCaps
}

// NewStaticPlanCapsHolder returns a holder that never reloads.
func NewStaticPlanCapsHolder(caps PlanCaps) *PlanCapsHolder {
	holder := &PlanCapsHolder{}
	holder.current.Store(normalizePlanCaps(caps))
	return holder
}

func NewPlanCapsHolder(cfg Config, log *zap.Logger) (*PlanCapsHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.plans")

	v := viper.New()
	if path := strings.TrimSpace(cfg.Billing.PlansFile); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("plans")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/bookpost")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BOOKPOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("plans.caps", map[string]int64(DefaultPlanCaps()))

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read plans file: %w", err)
		}
		fileLoaded = false
	}

	caps, err := readPlanCaps(v)
	if err != nil {
		return nil, err
	}

	holder := &PlanCapsHolder{}
	holder.current.Store(caps)

	if fileLoaded {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := readPlanCaps(v)
			if err != nil {
				log.Warn("plan caps reload ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("plan caps reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

// Cap returns the configured cap for plan.
func (h *PlanCapsHolder) Cap(plan string) (int64, bool) {
	if h == nil {
		return 0, false
	}
	caps, _ := h.current.Load().(PlanCaps)
	value, ok := caps[strings.ToLower(strings.TrimSpace(plan))]
	return value, ok
}

func readPlanCaps(v *viper.Viper) (PlanCaps, error) {
	var caps map[string]int64
	if err := v.UnmarshalKey("plans.caps", &caps); err != nil {
		return nil, err
	}
	if err := validatePlanCaps(caps); err != nil {
		return nil, err
	}
	return normalizePlanCaps(caps), nil
}

func validatePlanCaps(caps map[string]int64) error {
	if len(caps) == 0 {
		return errors.New("plans.caps cannot be empty")
	}
	for plan, value := range caps {
		if value < 0 {
			return fmt.Errorf("plans.caps.%s must be >= 0", plan)
		}
	}
	return nil
}

func normalizePlanCaps(caps map[string]int64) PlanCaps {
	out := make(PlanCaps, len(caps))
	for plan, value := range caps {
		out[strings.ToLower(strings.TrimSpace(plan))] = value
	}
	return out
}
