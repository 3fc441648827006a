package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "REMINDSYNC_"

// parseEnv overlays REMINDSYNC_* environment variables, e.g.
// REMINDSYNC_DATABASE_DSN or REMINDSYNC_LEAD_WINDOW=45m. Keys match the
// JSON config names. Malformed values panic.
func parseEnv(config *Config) {
	k := koanf.New(".")
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		panic(err)
	}

	strs := map[string]*string{
		"database_dsn":        &config.DatabaseDSN,
		"storage_backend":     &config.StorageBackend,
		"mirror_dsn":          &config.MirrorDSN,
		"live_addr":           &config.LiveAddr,
		"cache_backend":       &config.CacheBackend,
		"redis_addr":          &config.RedisAddr,
		"timezone":            &config.Timezone,
		"expansion_schedule":  &config.ExpansionSchedule,
		"upcoming_schedule":   &config.UpcomingSchedule,
		"suggestion_schedule": &config.SuggestionSchedule,
		"insight_schedule":    &config.InsightSchedule,
		"audit_schedule":      &config.AuditSchedule,
		"full_audit_schedule": &config.FullAuditSchedule,
		"expo_push_url":       &config.ExpoPushURL,
		"telegram_bot_token":  &config.TelegramBotToken,
		"deepseek_api_key":    &config.DeepSeekAPIKey,
		"deepseek_model":      &config.DeepSeekModel,
		"s3_root_user":        &config.S3RootUser,
		"s3_root_password":    &config.S3RootPassword,
		"s3_bucket":           &config.S3Bucket,
		"s3_region":           &config.S3Region,
		"s3_base_endpoint":    &config.S3BaseEndpoint,
		"log_file":            &config.LogFile,
	}
	for key, dst := range strs {
		if k.Exists(key) {
			*dst = k.String(key)
		}
	}

	durs := map[string]*time.Duration{
		"subscription_poll_interval": &config.SubscriptionPollInterval,
		"cache_ttl":                  &config.CacheTTL,
		"suggestion_ttl":             &config.SuggestionTTL,
		"lead_window":                &config.LeadWindow,
		"retry_poll_interval":        &config.RetryPollInterval,
		"retry_base_delay":           &config.RetryBaseDelay,
		"leader_retry_interval":      &config.LeaderRetryInterval,
	}
	for key, dst := range durs {
		if !k.Exists(key) {
			continue
		}
		d, err := time.ParseDuration(k.String(key))
		if err != nil {
			panic(fmt.Errorf("%s%s: %w", envPrefix, strings.ToUpper(key), err))
		}
		*dst = d
	}

	ints := map[string]*int{
		"retry_max_attempts": &config.RetryMaxAttempts,
		"log_max_size_mb":    &config.LogMaxSizeMB,
	}
	for key, dst := range ints {
		if !k.Exists(key) {
			continue
		}
		n, err := strconv.Atoi(k.String(key))
		if err != nil {
			panic(fmt.Errorf("%s%s: %w", envPrefix, strings.ToUpper(key), err))
		}
		*dst = n
	}

	if k.Exists("leader_lock_key") {
		n, err := strconv.ParseInt(k.String("leader_lock_key"), 10, 64)
		if err != nil {
			panic(fmt.Errorf("%sLEADER_LOCK_KEY: %w", envPrefix, err))
		}
		config.LeaderLockKey = n
	}
}
