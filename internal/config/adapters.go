package config

import (
	"fmt"

	"github.com/garyjia/claim-review/internal/application/service"
	"github.com/garyjia/claim-review/internal/application/workflow"
	"github.com/garyjia/claim-review/internal/infrastructure/cache"
	"github.com/garyjia/claim-review/internal/infrastructure/external/kafka"
	"github.com/garyjia/claim-review/internal/infrastructure/external/lark"
	"github.com/garyjia/claim-review/internal/policy"
	"github.com/garyjia/claim-review/internal/risk"
	"github.com/garyjia/claim-review/pkg/database"
	"github.com/garyjia/claim-review/pkg/utils"
	"github.com/shopspring/decimal"
)

// RiskConfig converts the scoring section into detector settings
func (c *Config) RiskConfig() (risk.Config, error) {
	s := c.Scoring
	var (
		out risk.Config
		err error
	)

	parse := func(field, v string) decimal.Decimal {
		if err != nil {
			return decimal.Zero
		}
		d, perr := decimal.NewFromString(v)
		if perr != nil {
			err = fmt.Errorf("scoring.%s: invalid decimal %q: %w", field, v, perr)
		}
		return d
	}

	out.Amount = risk.AmountConfig{
		RoundFloor:      parse("amount.round_floor", s.Amount.RoundFloor),
		RoundMultiple:   parse("amount.round_multiple", s.Amount.RoundMultiple),
		RoundWeight:     s.Amount.RoundWeight,
		HighValue:       parse("amount.high_value", s.Amount.HighValue),
		HighValueWeight: s.Amount.HighValueWeight,
		RepeatCount:     s.Amount.RepeatCount,
		RepeatWeight:    s.Amount.RepeatWeight,
		Cap:             s.Amount.Cap,
	}
	out.Timing = risk.TimingConfig{
		WeekendWeight:  s.Timing.WeekendWeight,
		Holidays:       s.Timing.Holidays,
		OffHoursStart:  s.Timing.OffHoursStart,
		OffHoursEnd:    s.Timing.OffHoursEnd,
		OffHoursWeight: s.Timing.OffHoursWeight,
		StaleDays:      s.Timing.StaleDays,
		StaleWeight:    s.Timing.StaleWeight,
		Cap:            s.Timing.Cap,
	}
	out.Frequency = risk.FrequencyConfig{
		Window:          s.Frequency.Window,
		MaxClaims:       s.Frequency.MaxClaims,
		FrequencyWeight: s.Frequency.FrequencyWeight,
		Ceiling:         parse("frequency.ceiling", s.Frequency.Ceiling),
		Band:            parse("frequency.band", s.Frequency.Band),
		GamingCount:     s.Frequency.GamingCount,
		GamingWeight:    s.Frequency.GamingWeight,
		Cap:             s.Frequency.Cap,
	}
	out.Category = risk.CategoryConfig{
		HighRisk:          s.Category.HighRisk,
		HighRiskWeight:    s.Category.HighRiskWeight,
		Lookback:          s.Category.Lookback,
		DistinctThreshold: s.Category.DistinctThreshold,
		SwitchingWeight:   s.Category.SwitchingWeight,
		Cap:               s.Category.Cap,
	}
	out.Description = risk.DescriptionConfig{
		MinLength:       s.Description.MinLength,
		VagueWeight:     s.Description.VagueWeight,
		DuplicateCount:  s.Description.DuplicateCount,
		DuplicateWeight: s.Description.DuplicateWeight,
		Cap:             s.Description.Cap,
	}
	out.Receipt = risk.ReceiptConfig{
		MissingWeight: s.Receipt.MissingWeight,
		Cap:           s.Receipt.Cap,
	}

	if err != nil {
		return risk.Config{}, err
	}
	if err := out.Validate(); err != nil {
		return risk.Config{}, fmt.Errorf("scoring: %w", err)
	}
	return out, nil
}

// PolicyConfig converts the policy section
func (c *Config) PolicyConfig() policy.Config {
	return policy.Config{
		Thresholds: policy.Thresholds{
			Medium:      c.Policy.Medium,
			High:        c.Policy.High,
			Critical:    c.Policy.Critical,
			Investigate: c.Policy.Investigate,
		},
		InvestigateOnCritical: c.Policy.InvestigateOnCritical,
	}
}

// WorkflowConfig converts the workflow and escalation sections
func (c *Config) WorkflowConfig() workflow.Config {
	reviewers := make(map[string][]string, len(c.Workflow.Reviewers))
	for _, r := range c.Workflow.Reviewers {
		reviewers[r.ID] = append(reviewers[r.ID], r.Roles...)
	}
	return workflow.Config{
		AutoReject: workflow.AutoRejectConfig{
			Enabled:     c.Workflow.AutoReject.Enabled,
			GracePeriod: c.Workflow.AutoReject.GracePeriod,
		},
		Reviewers:          reviewers,
		AdminRole:          c.Workflow.AdminRole,
		InitialAssignee:    c.Workflow.InitialAssignee,
		SweepBatchSize:     c.Escalation.BatchSize,
		RescoreConcurrency: c.Workflow.RescoreConcurrency,
	}
}

// HistoryConfig returns the scoring history window
func (c *Config) HistoryConfig() service.HistoryConfig {
	return service.HistoryConfig{Window: c.Scoring.HistoryWindow, Limit: c.Scoring.HistoryLimit}
}

// DatabaseOptions converts the database section
func (c *Config) DatabaseOptions() database.Config {
	return database.Config{
		Path:            c.Database.Path,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		BusyTimeout:     c.Database.BusyTimeout,
	}
}

// LoggerOptions converts the logger section
func (c *Config) LoggerOptions(service string) utils.LoggerConfig {
	return utils.LoggerConfig{
		Level:      c.Logger.Level,
		OutputPath: c.Logger.OutputPath,
		Format:     c.Logger.Format,
		Service:    service,
	}
}

// CacheOptions converts the cache section
func (c *Config) CacheOptions() cache.Config {
	return cache.Config{
		Type:          c.Cache.Type,
		TTL:           c.Cache.TTL,
		Size:          c.Cache.Size,
		RedisAddr:     c.Cache.Redis.Addr,
		RedisPassword: c.Cache.Redis.Password,
		RedisDB:       c.Cache.Redis.DB,
	}
}

// LarkOptions converts the Lark notification section
func (c *Config) LarkOptions() lark.Config {
	chats := make(map[string]string, len(c.Notification.Lark.RoleChats))
	for _, rc := range c.Notification.Lark.RoleChats {
		chats[rc.Role] = rc.ChatID
	}
	return lark.Config{
		AppID:         c.Notification.Lark.AppID,
		AppSecret:     c.Notification.Lark.AppSecret,
		ReceiveIDType: c.Notification.Lark.ReceiveIDType,
		RoleChats:     chats,
	}
}

// KafkaOptions converts the Kafka notification section
func (c *Config) KafkaOptions() kafka.Config {
	return kafka.Config{
		Brokers:      c.Notification.Kafka.Brokers,
		Topic:        c.Notification.Kafka.Topic,
		BatchTimeout: c.Notification.Kafka.BatchTimeout,
	}
}
