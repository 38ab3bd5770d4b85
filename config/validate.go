package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration for values that would break the session.
func Validate(cfg AppConfig) error {
	var errs []string

	if cfg.Broker.Endpoint == "" {
		errs = append(errs, "broker.endpoint is required")
	} else if !strings.HasPrefix(cfg.Broker.Endpoint, "ws://") && !strings.HasPrefix(cfg.Broker.Endpoint, "wss://") {
		errs = append(errs, "broker.endpoint must be a ws:// or wss:// URL")
	}
	if cfg.Session.JournalPath == "" {
		errs = append(errs, "session.journalPath is required")
	}
	if cfg.Session.StartingCash < 0 {
		errs = append(errs, "session.startingCash must be >= 0")
	}

	if err := validateLimits(cfg); err != nil {
		errs = append(errs, err.Error())
	}

	if cfg.Reconcile.Interval <= 0 {
		errs = append(errs, "reconcile.interval must be positive")
	}
	if cfg.Reconcile.Tolerance < 0 {
		errs = append(errs, "reconcile.tolerance must be >= 0")
	}
	if cfg.Reconcile.BackoffInitial <= 0 || cfg.Reconcile.BackoffMax < cfg.Reconcile.BackoffInitial {
		errs = append(errs, "reconcile backoff window invalid")
	}

	for sym, mult := range cfg.Contracts {
		if mult <= 0 {
			errs = append(errs, fmt.Sprintf("contracts.%s multiplier must be positive", sym))
		}
	}

	if len(errs) > 0 {
		return errors.New("config invalid: " + strings.Join(errs, "; "))
	}
	return nil
}

func validateLimits(cfg AppConfig) error {
	l := cfg.Risk
	var errs []string
	if l.MaxPositionPerSymbol <= 0 {
		errs = append(errs, "risk.maxPositionPerSymbol must be positive")
	}
	if l.MaxTotalPositions <= 0 {
		errs = append(errs, "risk.maxTotalPositions must be positive")
	}
	if l.MaxPositionValueRatio <= 0 || l.MaxPositionValueRatio > 1 {
		errs = append(errs, "risk.maxPositionValueRatio must be in (0,1]")
	}
	if l.MaxOrderAmount <= 0 {
		errs = append(errs, "risk.maxOrderAmount must be positive")
	}
	if l.MaxDailyLossRatio < 0 || l.MaxDailyLossRatio > 1 {
		errs = append(errs, "risk.maxDailyLossRatio must be in [0,1]")
	}
	if l.MinAvailableRatio < 0 || l.MinAvailableRatio > 1 {
		errs = append(errs, "risk.minAvailableRatio must be in [0,1]")
	}
	if l.MaxOrdersPerMinute <= 0 {
		errs = append(errs, "risk.maxOrdersPerMinute must be positive")
	}
	if l.MaxPriceDeviationRatio < 0 {
		errs = append(errs, "risk.maxPriceDeviationRatio must be >= 0")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
