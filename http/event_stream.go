package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/opentip/funnelhub/events"
	"github.com/opentip/funnelhub/logger"
)

// paymentEventsSSEHandler streams engine events to operator dashboards over
// Server-Sent Events. Slow consumers drop events rather than block the bus.
func (httpSvc *HttpService) paymentEventsSSEHandler(c echo.Context) error {
	if _, ok := c.Response().Writer.(http.Flusher); !ok {
		logger.Logger.Error().Msg("Streaming not supported: ResponseWriter does not implement http.Flusher")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Streaming not supported by server"})
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")

	// Flush headers immediately
	c.Response().Flush()

	eventChan := make(chan *events.Event, 16)

	subscriber := &paymentEventSubscriber{
		handler: func(event *events.Event) {
			if strings.HasPrefix(event.Event, "funnelhub_payment_") {
				select {
				case eventChan <- event:
				default:
					// Channel full, skip event
				}
			}
		},
	}
	httpSvc.eventPublisher.RegisterSubscriber(subscriber)
	defer httpSvc.eventPublisher.RemoveSubscriber(subscriber)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case <-ticker.C:
			// Send keepalive comment
			if _, err := c.Response().Write([]byte(": keepalive\n\n")); err != nil {
				return nil
			}
			c.Response().Flush()
		case event := <-eventChan:
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := c.Response().Write([]byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Event, string(data)))); err != nil {
				return nil
			}
			c.Response().Flush()
		}
	}
}

type paymentEventSubscriber struct {
	handler func(event *events.Event)
}

func (s *paymentEventSubscriber) ConsumeEvent(ctx context.Context, event *events.Event, globalProperties map[string]interface{}) {
	s.handler(event)
}
