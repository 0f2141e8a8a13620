package cmd

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/kilianp07/faultfleet/infra/predictor"
)

var predictorURL string

var predictorHealthCmd = &cobra.Command{
	Use:   "predictor-health",
	Short: "Check the dispatch predictor service",
	RunE:  runPredictorHealth,
}

func init() {
	predictorHealthCmd.Flags().StringVar(&predictorURL, "url", "", "predictor base URL (overrides the configuration)")
	rootCmd.AddCommand(predictorHealthCmd)
}

func runPredictorHealth(cmd *cobra.Command, args []string) error {
	var pc predictor.Config
	if predictorURL != "" {
		pc.URL = predictorURL
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pc = cfg.Predictor
	}
	if pc.URL == "" {
		return errors.New("predictor url is not configured")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	h, err := predictor.New(pc).Health(ctx)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(cmd.OutOrStdout()).Encode(h); err != nil {
		return err
	}
	if !h.ModelLoaded {
		return errors.New("predictor model not loaded")
	}
	return nil
}
