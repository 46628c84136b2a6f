package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Environment variables that supply flag defaults.
const (
	envScenario = "DCSIM_SCENARIO"
	envPolicy   = "DCSIM_POLICY"
	envLogLevel = "DCSIM_LOG_LEVEL"
)

// loadEnvironment reads envFile into the process environment when it
// exists. Variables already set are kept.
func loadEnvironment(envFile string) {
	if _, err := os.Stat(envFile); err != nil {
		return
	}
	if err := godotenv.Load(envFile); err != nil {
		logrus.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
		return
	}
	logrus.WithField("file", envFile).Debug("Loaded environment variables")
}

// applyEnvironment fills flags the user did not set from the environment.
func applyEnvironment(cmd *cobra.Command) {
	for flag, env := range map[string]string{
		"scenario": envScenario,
		"policy":   envPolicy,
		"log":      envLogLevel,
	} {
		f := cmd.Flags().Lookup(flag)
		if f == nil || f.Changed {
			continue
		}
		if v, ok := os.LookupEnv(env); ok && v != "" {
			if err := f.Value.Set(v); err != nil {
				logrus.Warnf("ignoring %s=%q: %v", env, v, err)
			}
		}
	}
}
