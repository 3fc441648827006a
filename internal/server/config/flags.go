package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/flagx"
)

// parseFlags overlays command-line flags.
//
// Supported flags:
//
//	-d string   PostgreSQL DSN
//	-s string   SoR backend: postgres | memory
//	-m string   mirror (SQLite) DSN
//	-l string   live feed listen address
//	-k string   cache backend: redis | memory
//	-r string   redis address
//	-t int      cache TTL, seconds
//	-w int      notification lead window, minutes
//	-z string   scheduler time zone
//	-log string log file (rotated); stdout only when empty
//
// Only these flags are parsed; args are filtered with flagx.FilterArgs
// so the -c/-config flag handled by parseJson does not collide.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-d", "-s", "-m", "-l", "-k", "-r", "-t", "-w", "-z", "-log"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.StorageBackend, "s", config.StorageBackend, "SoR backend (postgres|memory)")
	fs.StringVar(&config.MirrorDSN, "m", config.MirrorDSN, "mirror store DSN")
	fs.StringVar(&config.LiveAddr, "l", config.LiveAddr, "live feed address")
	fs.StringVar(&config.CacheBackend, "k", config.CacheBackend, "cache backend (redis|memory)")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")

	cacheTTL := fs.Int("t", int(config.CacheTTL.Seconds()), "cache TTL (in seconds)")
	leadWindow := fs.Int("w", int(config.LeadWindow.Minutes()), "notification lead window (in minutes)")

	fs.StringVar(&config.Timezone, "z", config.Timezone, "scheduler time zone")
	fs.StringVar(&config.LogFile, "log", config.LogFile, "log file")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.CacheTTL = time.Duration(*cacheTTL) * time.Second
	config.LeadWindow = time.Duration(*leadWindow) * time.Minute
}
