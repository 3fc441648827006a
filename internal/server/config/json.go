package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/flagx"
	"github.com/dmitrijs2005/remindsync/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// either "90s" style strings or integer nanoseconds. Absent keys keep the
// value already in Config.
type JsonConfig struct {
	DatabaseDSN              string         `json:"database_dsn"`
	StorageBackend           string         `json:"storage_backend"`
	MirrorDSN                string         `json:"mirror_dsn"`
	LiveAddr                 string         `json:"live_addr"`
	SubscriptionPollInterval timex.Duration `json:"subscription_poll_interval"`
	CacheBackend             string         `json:"cache_backend"`
	RedisAddr                string         `json:"redis_addr"`
	CacheTTL                 timex.Duration `json:"cache_ttl"`
	SuggestionTTL            timex.Duration `json:"suggestion_ttl"`
	LeadWindow               timex.Duration `json:"lead_window"`
	Timezone                 string         `json:"timezone"`
	ExpansionSchedule        string         `json:"expansion_schedule"`
	UpcomingSchedule         string         `json:"upcoming_schedule"`
	SuggestionSchedule       string         `json:"suggestion_schedule"`
	InsightSchedule          string         `json:"insight_schedule"`
	RetryPollInterval        timex.Duration `json:"retry_poll_interval"`
	RetryMaxAttempts         int            `json:"retry_max_attempts"`
	RetryBaseDelay           timex.Duration `json:"retry_base_delay"`
	AuditSchedule            string         `json:"audit_schedule"`
	FullAuditSchedule        string         `json:"full_audit_schedule"`
	LeaderLockKey            int64          `json:"leader_lock_key"`
	LeaderRetryInterval      timex.Duration `json:"leader_retry_interval"`
	ExpoPushURL              string         `json:"expo_push_url"`
	TelegramBotToken         string         `json:"telegram_bot_token"`
	DeepSeekAPIKey           string         `json:"deepseek_api_key"`
	DeepSeekModel            string         `json:"deepseek_model"`
	S3RootUser               string         `json:"s3_root_user"`
	S3RootPassword           string         `json:"s3_root_password"`
	S3Bucket                 string         `json:"s3_bucket"`
	S3Region                 string         `json:"s3_region"`
	S3BaseEndpoint           string         `json:"s3_base_endpoint"`
	LogFile                  string         `json:"log_file"`
	LogMaxSizeMB             int            `json:"log_max_size_mb"`
}

// parseJson loads the file named by -c/-config (if any) over config.
// An unreadable file or invalid JSON panics.
func parseJson(config *Config, args []string) {
	path := flagx.ConfigFile(args)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.MirrorDSN, c.MirrorDSN)
	setString(&config.LiveAddr, c.LiveAddr)
	setDuration(&config.SubscriptionPollInterval, c.SubscriptionPollInterval)
	setString(&config.CacheBackend, c.CacheBackend)
	setString(&config.RedisAddr, c.RedisAddr)
	setDuration(&config.CacheTTL, c.CacheTTL)
	setDuration(&config.SuggestionTTL, c.SuggestionTTL)
	setDuration(&config.LeadWindow, c.LeadWindow)
	setString(&config.Timezone, c.Timezone)
	setString(&config.ExpansionSchedule, c.ExpansionSchedule)
	setString(&config.UpcomingSchedule, c.UpcomingSchedule)
	setString(&config.SuggestionSchedule, c.SuggestionSchedule)
	setString(&config.InsightSchedule, c.InsightSchedule)
	setDuration(&config.RetryPollInterval, c.RetryPollInterval)
	setInt(&config.RetryMaxAttempts, c.RetryMaxAttempts)
	setDuration(&config.RetryBaseDelay, c.RetryBaseDelay)
	setString(&config.AuditSchedule, c.AuditSchedule)
	setString(&config.FullAuditSchedule, c.FullAuditSchedule)
	if c.LeaderLockKey != 0 {
		config.LeaderLockKey = c.LeaderLockKey
	}
	setDuration(&config.LeaderRetryInterval, c.LeaderRetryInterval)
	setString(&config.ExpoPushURL, c.ExpoPushURL)
	setString(&config.TelegramBotToken, c.TelegramBotToken)
	setString(&config.DeepSeekAPIKey, c.DeepSeekAPIKey)
	setString(&config.DeepSeekModel, c.DeepSeekModel)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogFile, c.LogFile)
	setInt(&config.LogMaxSizeMB, c.LogMaxSizeMB)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
