package util

import (
	"strings"

	"github.com/ValentinKolb/refmap/lib/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupCacheFlags adds the flags configuring a map to a command
func SetupCacheFlags(cmd *cobra.Command) {
	key := "name"
	cmd.PersistentFlags().String(key, "default", WrapString("Name of the cache (value of the cache label of all metrics)"))

	key = "policy"
	cmd.PersistentFlags().String(key, "weak", WrapString("Reclamation policy of the values (weak, soft)"))

	key = "retention-size"
	cmd.PersistentFlags().Int(key, 100, WrapString("How many recently touched values are kept strongly reachable"))

	key = "weak-tier-size"
	cmd.PersistentFlags().Int(key, 0, WrapString("Bound on the number of weak values tracked for recency, values evicted from it are reclaimed (0 = unbounded)"))

	key = "soft-budget"
	cmd.PersistentFlags().Int64(key, 0, WrapString("Memory budget of soft values in bytes, the least recently touched values are reclaimed when it is exceeded (0 = disabled)"))

	key = "heap-soft-limit"
	cmd.PersistentFlags().Uint64(key, 0, WrapString("Live heap size in bytes above which a GC-driven cycle of a soft cache signals memory pressure (0 = disabled)"))

	key = "reclaim-interval"
	cmd.PersistentFlags().Duration(key, 0, WrapString("Time between background reclaim cycles (0 = disabled)"))

	key = "gc-driven"
	cmd.PersistentFlags().Bool(key, false, WrapString("Run a reclaim cycle after every Go garbage collection"))

	key = "initial-capacity"
	cmd.PersistentFlags().Int(key, 0, WrapString("Presize of the backing store"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("Log level (debug, info, warn, error)"))
}

// InitConfig initializes configuration from .env files and environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("refmap")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetCacheConfig reads the cache configuration from viper
func GetCacheConfig() *common.CacheConfig {
	return &common.CacheConfig{
		Name:               viper.GetString("name"),
		Policy:             viper.GetString("policy"),
		RetentionSize:      viper.GetInt("retention-size"),
		WeakTierSize:       viper.GetInt("weak-tier-size"),
		SoftBudgetBytes:    viper.GetInt64("soft-budget"),
		HeapSoftLimitBytes: viper.GetUint64("heap-soft-limit"),
		ReclaimInterval:    viper.GetDuration("reclaim-interval"),
		GCDriven:           viper.GetBool("gc-driven"),
		InitialCapacity:    viper.GetInt("initial-capacity"),
		Endpoint:           viper.GetString("endpoint"),
		LogLevel:           viper.GetString("log-level"),
	}
}

// BindCommandFlags binds a command's flags (including the inherited ones) to viper
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.InheritedFlags()); err != nil {
		return err
	}
	return viper.BindPFlags(cmd.Flags())
}
