package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/hKV/lib/hash/index"
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

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("hkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// SetupEngineFlags adds the engine tuning flags shared by commands
// that create a local engine
func SetupEngineFlags(cmd *cobra.Command) {
	key := "index"
	cmd.PersistentFlags().String(key, "sorted", WrapString("Expiry index strategy (sorted, bucket, none)"))

	key = "namespaces"
	cmd.PersistentFlags().Int(key, 0, WrapString("Number of logical databases (0 = engine default)"))

	key = "active-period"
	cmd.PersistentFlags().Duration(key, 0, WrapString("Interval between background expiry ticks (0 = engine default)"))

	key = "keys-per-tick"
	cmd.PersistentFlags().Int(key, 0, WrapString("Keys swept per namespace per expiry tick (0 = engine default)"))
}

// GetIndexMode reads and validates the configured index mode
func GetIndexMode() (index.Mode, error) {
	switch viper.GetString("index") {
	case "sorted":
		return index.ModeSorted, nil
	case "bucket":
		return index.ModeBucket, nil
	case "none":
		return index.ModeNone, nil
	default:
		return "", fmt.Errorf("invalid index mode %s", viper.GetString("index"))
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
