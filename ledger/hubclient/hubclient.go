package hubclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opentip/funnelhub/ledger"
	"github.com/opentip/funnelhub/logger"
	"github.com/opentip/funnelhub/pkg/version"
)

// HubClient talks to an lndhub-style custodial hub over HTTP/JSON. The
// settlement feed is a server-sent event stream on the same API.
type HubClient struct {
	baseUrl string
	apiKey  string
	client  *http.Client
	// separate client without a global timeout; stream lifetime is bounded
	// by the subscription context instead
	streamClient *http.Client
}

func NewHubClient(baseUrl string, apiKey string) *HubClient {
	return &HubClient{
		baseUrl: strings.TrimSuffix(baseUrl, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		streamClient: &http.Client{},
	}
}

type createInvoiceRequest struct {
	AmountSat     uint64 `json:"amountSat"`
	Memo          string `json:"memo,omitempty"`
	ExpirySeconds uint64 `json:"expirySeconds"`
}

func (c *HubClient) CreateInvoice(ctx context.Context, amountSat uint64, memo string, expiry time.Duration) (*ledger.Invoice, error) {
	payload, err := json.Marshal(&createInvoiceRequest{
		AmountSat:     amountSat,
		Memo:          memo,
		ExpirySeconds: uint64(expiry.Seconds()),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseUrl+"/api/v1/invoices", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.setDefaultRequestHeaders(req)

	res, err := c.client.Do(req)
	if err != nil {
		logger.Logger.Error().
			Err(err).
			Uint64("amount_sat", amountSat).
			Msg("Failed to create invoice on hub")
		return nil, ledger.NewUpstreamUnavailableError(err.Error())
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, ledger.NewUpstreamUnavailableError("failed to read invoice response body")
	}

	if res.StatusCode >= 300 {
		logger.Logger.Error().
			Int("status_code", res.StatusCode).
			Str("body", string(body)).
			Msg("Hub invoice endpoint returned non-success code")
		return nil, fmt.Errorf("hub invoice endpoint returned non-success code %d: %s", res.StatusCode, string(body))
	}

	invoice := &ledger.Invoice{}
	if err := json.Unmarshal(body, invoice); err != nil {
		return nil, fmt.Errorf("failed to decode invoice response: %w", err)
	}
	return invoice, nil
}

func (c *HubClient) Transfer(ctx context.Context, transferRequest *ledger.TransferRequest) (*ledger.TransferResponse, error) {
	payload, err := json.Marshal(transferRequest)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseUrl+"/api/v1/transfers", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.setDefaultRequestHeaders(req)

	res, err := c.client.Do(req)
	if err != nil {
		logger.Logger.Error().
			Err(err).
			Str("to", transferRequest.To).
			Uint64("amount_sat", transferRequest.AmountSat).
			Msg("Failed to execute transfer on hub")
		return nil, ledger.NewUpstreamUnavailableError(err.Error())
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, ledger.NewUpstreamUnavailableError("failed to read transfer response body")
	}

	// 4xx means the hub understood and refused; retrying cannot change that
	if res.StatusCode >= 400 && res.StatusCode < 500 {
		logger.Logger.Error().
			Int("status_code", res.StatusCode).
			Str("body", string(body)).
			Str("to", transferRequest.To).
			Msg("Hub rejected transfer")
		return nil, ledger.NewTransferRejectedError(string(body))
	}
	if res.StatusCode >= 300 {
		logger.Logger.Error().
			Int("status_code", res.StatusCode).
			Str("body", string(body)).
			Msg("Hub transfer endpoint returned non-success code")
		return nil, ledger.NewUpstreamUnavailableError(fmt.Sprintf("status %d: %s", res.StatusCode, string(body)))
	}

	transferResponse := &ledger.TransferResponse{}
	if err := json.Unmarshal(body, transferResponse); err != nil {
		return nil, fmt.Errorf("failed to decode transfer response: %w", err)
	}
	return transferResponse, nil
}

func (c *HubClient) GetInfo(ctx context.Context) (*ledger.Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseUrl+"/api/v1/info", nil)
	if err != nil {
		return nil, err
	}
	c.setDefaultRequestHeaders(req)

	res, err := c.client.Do(req)
	if err != nil {
		return nil, ledger.NewUpstreamUnavailableError(err.Error())
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, ledger.NewUpstreamUnavailableError("failed to read info response body")
	}
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("hub info endpoint returned non-success code %d: %s", res.StatusCode, string(body))
	}

	info := &ledger.Info{}
	if err := json.Unmarshal(body, info); err != nil {
		return nil, fmt.Errorf("failed to decode info response: %w", err)
	}
	return info, nil
}

// SubscribeSettlements opens the hub's SSE settlement stream. Events arrive
// on the returned channel until the stream breaks or the close function is
// called; the channel is closed in both cases and the caller owns reconnects.
func (c *HubClient) SubscribeSettlements(ctx context.Context, filter *ledger.SettlementFilter) (<-chan ledger.SettlementEvent, func(), error) {
	streamUrl := c.baseUrl + "/api/v1/settlements/stream"
	if filter != nil && len(filter.PaymentHashes) > 0 {
		query := url.Values{}
		for _, paymentHash := range filter.PaymentHashes {
			query.Add("payment_hash", paymentHash)
		}
		streamUrl = streamUrl + "?" + query.Encode()
	}

	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, streamUrl, nil)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	c.setDefaultRequestHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	res, err := c.streamClient.Do(req)
	if err != nil {
		cancel()
		return nil, nil, ledger.NewUpstreamUnavailableError(err.Error())
	}
	if res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		res.Body.Close()
		cancel()
		return nil, nil, ledger.NewUpstreamUnavailableError(fmt.Sprintf("settlement stream returned status %d: %s", res.StatusCode, string(body)))
	}

	eventChan := make(chan ledger.SettlementEvent)
	go func() {
		defer close(eventChan)
		defer res.Body.Close()

		scanner := bufio.NewScanner(res.Body)
		scanner.Buffer(make([]byte, 0, 4096), 1024*1024)

		eventName := ""
		dataBuf := ""
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				// end of one SSE event
				if dataBuf != "" && (eventName == "" || eventName == "settlement") {
					settlementEvent := ledger.SettlementEvent{}
					if err := json.Unmarshal([]byte(dataBuf), &settlementEvent); err != nil {
						logger.Logger.Error().
							Err(err).
							Str("data", dataBuf).
							Msg("Failed to decode settlement event")
					} else {
						select {
						case eventChan <- settlementEvent:
						case <-streamCtx.Done():
							return
						}
					}
				}
				eventName = ""
				dataBuf = ""
			case strings.HasPrefix(line, ":"):
				// keepalive comment
			case strings.HasPrefix(line, "event:"):
				eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				dataBuf = dataBuf + strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		}
		if err := scanner.Err(); err != nil && streamCtx.Err() == nil {
			logger.Logger.Error().Err(err).Msg("Settlement stream read failed")
		}
	}()

	return eventChan, cancel, nil
}

func (c *HubClient) Shutdown() error {
	c.client.CloseIdleConnections()
	c.streamClient.CloseIdleConnections()
	return nil
}

func (c *HubClient) setDefaultRequestHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Funnelhub/"+version.Tag)
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
