package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

var (
	replayScenario string
	replaySpeed    float64
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a site scenario against the API",
	Long:  "replay creates the scenario's nodes and vehicles, then posts its readings and vehicle moves in order, honouring each step's delay.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if replaySpeed <= 0 {
			return fmt.Errorf("speed must be positive")
		}
		sc, err := LoadScenario(replayScenario)
		if err != nil {
			return err
		}
		client := newAPIClient(apiURL, tenant, &http.Client{Timeout: timeout})
		return replay(cmd.Context(), client, sc, replaySpeed, cmd.OutOrStdout())
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayScenario, "scenario", "", "Path to scenario YAML file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier")
	replayCmd.MarkFlagRequired("scenario") //nolint:errcheck // flag is defined above
}

type nodeRef struct {
	ID string `json:"id"`
}

type eventResult struct {
	Event struct {
		Severity string `json:"severity"`
	} `json:"event"`
}

func replay(ctx context.Context, c *apiClient, sc *Scenario, speed float64, out io.Writer) error {
	nodeIDs := make(map[string]string, len(sc.Nodes))
	for _, n := range sc.Nodes {
		var created nodeRef
		body := map[string]any{"name": n.Name, "coordinates": map[string]float64{"x": n.X, "y": n.Y}}
		if err := c.call(ctx, http.MethodPost, "/v1/nodes", body, &created); err != nil {
			return fmt.Errorf("create node %q: %w", n.Name, err)
		}
		nodeIDs[n.Name] = created.ID
		fmt.Fprintf(out, "node %-20s %s\n", n.Name, created.ID)
	}

	for _, v := range sc.Vehicles {
		body := map[string]any{
			"registrationNumber": v.Registration,
			"driverName":         v.Driver,
			"location":           map[string]float64{"latitude": v.Lat, "longitude": v.Lng},
		}
		err := c.call(ctx, http.MethodPost, "/v1/vehicles", body, nil)
		var apiErr *apiError
		switch {
		case errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict:
			fmt.Fprintf(out, "vehicle %-17s already registered\n", v.Registration)
		case err != nil:
			return fmt.Errorf("register vehicle %q: %w", v.Registration, err)
		default:
			fmt.Fprintf(out, "vehicle %-17s registered\n", v.Registration)
		}
	}

	for i, st := range sc.Steps {
		if err := wait(ctx, time.Duration(float64(st.Delay)/speed)); err != nil {
			return err
		}
		switch {
		case st.Reading != nil:
			r := st.Reading
			var res eventResult
			path := "/v1/nodes/" + url.PathEscape(nodeIDs[r.Node]) + "/events"
			err := c.call(ctx, http.MethodPost, path, map[string]any{"type": r.Type, "value": r.Value}, &res)
			if err != nil {
				// Rejected readings are part of realistic traffic; report and continue.
				fmt.Fprintf(out, "step %3d reading %s %s=%v rejected: %v\n", i+1, r.Node, r.Type, r.Value, err)
				continue
			}
			fmt.Fprintf(out, "step %3d reading %s %s=%v -> %s\n", i+1, r.Node, r.Type, r.Value, res.Event.Severity)
		case st.Move != nil:
			m := st.Move
			path := "/v1/vehicles/" + url.PathEscape(m.Vehicle) + "/location"
			if err := c.call(ctx, http.MethodPut, path, map[string]float64{"latitude": m.Lat, "longitude": m.Lng}, nil); err != nil {
				return fmt.Errorf("step %d: move %q: %w", i+1, m.Vehicle, err)
			}
			fmt.Fprintf(out, "step %3d move %s -> %.5f,%.5f\n", i+1, m.Vehicle, m.Lat, m.Lng)
		}
	}
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
