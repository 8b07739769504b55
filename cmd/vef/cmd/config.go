package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vefmedia/vef/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the effective configuration",
	Long: `Print the fully resolved configuration as YAML, after applying
defaults, the config file, and environment variable overrides.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		out, err := yaml.Marshal(toMap(reflect.ValueOf(*cfg)))
		if err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}

		fmt.Print(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a config struct to a map keyed by mapstructure tags, so
// the dump uses the same key names the config file does.
func toMap(v reflect.Value) map[string]any {
	out := make(map[string]any, v.NumField())
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		field := v.Field(i)
		switch {
		case field.Type() == reflect.TypeOf(time.Duration(0)):
			out[tag] = field.Interface().(time.Duration).String()
		case field.Kind() == reflect.Struct:
			out[tag] = toMap(field)
		default:
			out[tag] = field.Interface()
		}
	}
	return out
}
