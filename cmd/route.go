package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilianp07/faultfleet/app/plugins"
	"github.com/kilianp07/faultfleet/core/model"
	"github.com/kilianp07/faultfleet/core/routing"
	"github.com/kilianp07/faultfleet/infra/logger"
)

var routeFrom, routeTo string

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Compute a route with the configured router",
	RunE:  runRoute,
}

func init() {
	routeCmd.Flags().StringVar(&routeFrom, "from", "", "start as lat,lng")
	routeCmd.Flags().StringVar(&routeTo, "to", "", "destination as lat,lng")
	_ = routeCmd.MarkFlagRequired("from")
	_ = routeCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(routeCmd)
}

func parsePoint(s string) (model.Point, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return model.Point{}, fmt.Errorf("point %q: expected lat,lng", s)
	}
	var p model.Point
	var err error
	if p.Lat, err = strconv.ParseFloat(strings.TrimSpace(lat), 64); err != nil {
		return model.Point{}, fmt.Errorf("point %q: %w", s, err)
	}
	if p.Lng, err = strconv.ParseFloat(strings.TrimSpace(lng), 64); err != nil {
		return model.Point{}, fmt.Errorf("point %q: %w", s, err)
	}
	return p, p.Validate()
}

func runRoute(cmd *cobra.Command, args []string) error {
	from, err := parsePoint(routeFrom)
	if err != nil {
		return err
	}
	to, err := parsePoint(routeTo)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rf, err := plugins.Lookup(plugins.Routers, "routing provider", cfg.Routing.Provider)
	if err != nil {
		return err
	}
	router, err := rf(cfg.Routing)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}
	cf, err := plugins.Lookup(plugins.Caches, "route cache", cfg.Routing.Cache.Backend)
	if err != nil {
		return err
	}
	cache, err := cf(cfg.Routing.Cache)
	if err != nil {
		return fmt.Errorf("route cache: %w", err)
	}
	if c, ok := cache.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}
	svc := routing.NewService(router, cfg.Routing,
		routing.WithCache(cache),
		routing.WithLogger(logger.New("route-command")),
	)
	res, err := svc.Route(cmd.Context(), from, to)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
