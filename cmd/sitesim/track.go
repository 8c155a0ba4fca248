package main

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	trackDestLat  float64
	trackDestLng  float64
	trackPlaceID  string
	trackInterval int
)

var trackCmd = &cobra.Command{
	Use:   "track REGISTRATION",
	Short: "Tail a live tracking stream",
	Long:  "track opens a live tracking stream for a vehicle and prints each update until interrupted.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		switch {
		case trackPlaceID != "":
			q.Set("placeId", trackPlaceID)
		case cmd.Flags().Changed("dest-lat") && cmd.Flags().Changed("dest-lng"):
			q.Set("destLat", strconv.FormatFloat(trackDestLat, 'f', -1, 64))
			q.Set("destLng", strconv.FormatFloat(trackDestLng, 'f', -1, 64))
		default:
			return fmt.Errorf("either --place-id or both --dest-lat and --dest-lng are required")
		}
		if trackInterval > 0 {
			q.Set("interval", strconv.Itoa(trackInterval))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// No client timeout: the stream stays open until interrupted.
		client := newAPIClient(apiURL, tenant, &http.Client{})
		path := "/v1/track/stream/" + url.PathEscape(args[0]) + "?" + q.Encode()
		req, err := client.newRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		resp, err := client.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			var apiErr apiError
			apiErr.Status = resp.StatusCode
			_ = decodeBody(resp, &apiErr)
			return &apiErr
		}

		err = tailEvents(resp.Body, cmd.OutOrStdout())
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

// maxEventLine bounds one SSE line; a long route polyline can exceed the
// scanner's 64 KiB default.
const maxEventLine = 4 << 20

// tailEvents prints each data line of an event stream prefixed by its event name.
func tailEvents(r io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			fmt.Fprintf(out, "[%s] %s\n", event, strings.TrimPrefix(line, "data: "))
		}
	}
	return scanner.Err()
}

func init() {
	trackCmd.Flags().Float64Var(&trackDestLat, "dest-lat", 0, "Destination latitude")
	trackCmd.Flags().Float64Var(&trackDestLng, "dest-lng", 0, "Destination longitude")
	trackCmd.Flags().StringVar(&trackPlaceID, "place-id", "", "Destination place id (instead of coordinates)")
	trackCmd.Flags().IntVar(&trackInterval, "interval", 0, "Update interval in seconds (server default when 0)")
}
