package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/faultfleet/infra/logger"
	"github.com/kilianp07/faultfleet/infra/mqtt"
	"github.com/kilianp07/faultfleet/simulator"
)

var (
	simCfg    simulator.Config
	simCenter string
	simAPI    string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run simulated vehicles against the configured MQTT broker",
	RunE:  runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.IntVar(&simCfg.Count, "count", 5, "number of vehicles")
	f.StringVar(&simCenter, "center", "", "fleet center as lat,lng")
	f.Float64Var(&simCfg.SpreadM, "spread", 3000, "start radius around the center in meters")
	f.Float64Var(&simCfg.HardwarePct, "hardware-pct", 1, "share of vehicles with ack hardware")
	f.Float64Var(&simCfg.SpeedKMH, "speed", 40, "driving speed in km/h")
	f.DurationVar(&simCfg.Interval, "interval", 2*time.Second, "position publish interval")
	f.DurationVar(&simCfg.AckLatency, "ack-latency", time.Second, "ack latency")
	f.Float64Var(&simCfg.DropRate, "drop-rate", 0, "ack drop rate")
	f.Int64Var(&simCfg.Seed, "seed", 0, "random seed (0 for time based)")
	f.StringVar(&simAPI, "api", "", "register the vehicles on this service base URL first")
	_ = simulateCmd.MarkFlagRequired("center")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	center, err := parsePoint(simCenter)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sc := simCfg
	sc.Center = center
	sc.TopicPrefix = cfg.MQTT.TopicPrefix
	sc.SetDefaults()
	if err := sc.Validate(); err != nil {
		return err
	}

	log := logger.New("simulator")
	vehicles := simulator.GenerateFleet(sc, simulator.NewRandomAck(sc.AckLatency, sc.DropRate, sc.Seed, log))
	if simAPI != "" {
		for _, v := range vehicles {
			if err := register(ctx, simAPI, v); err != nil {
				return err
			}
		}
		log.Infof("registered %d vehicles on %s", len(vehicles), simAPI)
	}

	mc := cfg.MQTT
	mc.ClientID = fmt.Sprintf("faultfleet-sim-%d", time.Now().UnixNano())
	client, err := mqtt.NewClient(mc, log)
	if err != nil {
		return fmt.Errorf("mqtt client: %w", err)
	}
	defer client.Disconnect()

	simulator.RunFleet(ctx, vehicles, client, sc, log)
	return nil
}

func register(ctx context.Context, api string, v *simulator.SimulatedVehicle) error {
	body, err := json.Marshal(v.Registration())
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(api, "/")+"/api/vehicles", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("register %s: %w", v.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("register %s: status %d", v.ID, resp.StatusCode)
	}
	return nil
}
