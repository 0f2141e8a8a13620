package events

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreevents "github.com/kilianp07/faultfleet/core/events"
	"github.com/kilianp07/faultfleet/core/model"
	"github.com/kilianp07/faultfleet/internal/eventbus"
)

func TestSSEStreamsFilteredEvents(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	srv := httptest.NewServer(NewHandler(bus, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?kinds="+string(coreevents.KindVehicleStatus), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	// Publish until the first matching event comes through.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(20 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				bus.Publish(coreevents.Dispatched{FaultID: "f1", VehicleID: "v1"})
				bus.Publish(coreevents.VehicleStatusChanged{VehicleID: "v1", From: model.VehicleAvailable, To: model.VehicleOnRoute})
			}
		}
	}()

	var event, data string
	for event == "" || data == "" {
		select {
		case l, ok := <-lines:
			require.True(t, ok, "stream closed")
			switch {
			case strings.HasPrefix(l, "event: "):
				event = strings.TrimPrefix(l, "event: ")
			case strings.HasPrefix(l, "data: "):
				data = strings.TrimPrefix(l, "data: ")
			}
		case <-ctx.Done():
			t.Fatal("no event received")
		}
	}
	assert.Equal(t, string(coreevents.KindVehicleStatus), event)
	assert.Contains(t, data, `"vehicle_id":"v1"`)
}
