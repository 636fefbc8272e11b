package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"order-fulfillment/internal/core/config"
	"order-fulfillment/internal/core/httpclient"
	"order-fulfillment/internal/core/logger"
	"order-fulfillment/internal/features/shipping/domain"
	"order-fulfillment/internal/features/shipping/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FedExAdapter implements the CarrierGateway port against the FedEx REST API.
type FedExAdapter struct {
	// client is the HTTP client used for API requests.
	client *http.Client
	// config holds the FedEx connection details.
	config config.FedExConfig
	logger *zap.Logger

	// token cache; the OAuth token is shared across calls until close to expiry.
	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewFedExAdapter creates a new instance of FedExAdapter.
func NewFedExAdapter(cfg config.FedExConfig) *FedExAdapter {
	return &FedExAdapter{
		client: httpclient.NewClient(cfg.Timeout()),
		config: cfg,
		logger: logger.Get(),
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// getToken returns a valid OAuth token, fetching a fresh one when the cached
// token is missing or within a minute of expiry.
func (a *FedExAdapter) getToken(ctx context.Context) (string, error) {
	a.tokenMu.Lock()
	defer a.tokenMu.Unlock()

	if a.token != "" && time.Now().Before(a.tokenExpiry.Add(-time.Minute)) {
		return a.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", a.config.ClientID)
	form.Set("client_secret", a.config.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.config.APIURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request returned status: %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	a.token = tok.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return a.token, nil
}

// post sends an authenticated JSON request and returns the response body.
// Non-2xx responses and transport failures come back classified as CarrierError.
func (a *FedExAdapter) post(ctx context.Context, op, path string, payload interface{}, headers map[string]string) ([]byte, error) {
	token, err := a.getToken(ctx)
	if err != nil {
		return nil, ports.NewTransientError(op, err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, ports.NewPermanentError(op, fmt.Errorf("failed to encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.APIURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, ports.NewPermanentError(op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		// Transport failures, including client timeout and ctx cancellation.
		return nil, ports.NewTransientError(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ports.NewTransientError(op, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	cause := fmt.Errorf("fedex API returned status %d: %s", resp.StatusCode, truncate(respBody, 200))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, ports.NewTransientError(op, cause)
	}
	return nil, ports.NewPermanentError(op, cause)
}

type rateResponse struct {
	Output struct {
		RateReplyDetails []struct {
			ServiceType          string `json:"serviceType"`
			RatedShipmentDetails []struct {
				TotalNetCharge float64 `json:"totalNetCharge"`
				Currency       string  `json:"currency"`
			} `json:"ratedShipmentDetails"`
			Commit struct {
				TransitDays int `json:"transitDays"`
			} `json:"commit"`
		} `json:"rateReplyDetails"`
	} `json:"output"`
}

// Quote requests the available service tiers for a single-package shipment.
func (a *FedExAdapter) Quote(ctx context.Context, req domain.ShipmentRequest) ([]domain.RateQuote, error) {
	payload := map[string]interface{}{
		"accountNumber": map[string]string{"value": a.config.AccountNumber},
		"requestedShipment": map[string]interface{}{
			"recipient":                 recipientPayload(req),
			"pickupType":                "DROPOFF_AT_FEDEX_LOCATION",
			"rateRequestType":           []string{"ACCOUNT"},
			"requestedPackageLineItems": []interface{}{packagePayload(req)},
		},
	}

	body, err := a.post(ctx, "quote", "/rate/v1/rates/quotes", payload, nil)
	if err != nil {
		return nil, err
	}

	var resp rateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, ports.NewPermanentError("quote", fmt.Errorf("failed to decode rate response: %w", err))
	}

	quotes := make([]domain.RateQuote, 0, len(resp.Output.RateReplyDetails))
	for _, detail := range resp.Output.RateReplyDetails {
		if len(detail.RatedShipmentDetails) == 0 {
			continue
		}
		quotes = append(quotes, domain.RateQuote{
			ServiceType: detail.ServiceType,
			Amount:      detail.RatedShipmentDetails[0].TotalNetCharge,
			Currency:    detail.RatedShipmentDetails[0].Currency,
			TransitDays: detail.Commit.TransitDays,
		})
	}

	a.logger.Debug("FedEx rate quotes received",
		zap.String("order_id", req.OrderID),
		zap.Int("quote_count", len(quotes)),
	)
	return quotes, nil
}

type shipResponse struct {
	Output struct {
		TransactionShipments []struct {
			MasterTrackingNumber string `json:"masterTrackingNumber"`
			ServiceType          string `json:"serviceType"`
			DeliveryDate         string `json:"deliveryDate"`
			PieceResponses       []struct {
				PackageDocuments []struct {
					URL string `json:"url"`
				} `json:"packageDocuments"`
			} `json:"pieceResponses"`
		} `json:"transactionShipments"`
	} `json:"output"`
}

// PurchaseLabel buys a label for the selected tier. A transaction id header is
// sent so a repeated submission after a lost response can at least be
// correlated on the carrier side; the API does not promise replay semantics.
func (a *FedExAdapter) PurchaseLabel(ctx context.Context, req domain.ShipmentRequest, quote domain.RateQuote) (*domain.LabelResult, error) {
	payload := map[string]interface{}{
		"accountNumber":        map[string]string{"value": a.config.AccountNumber},
		"labelResponseOptions": "URL_ONLY",
		"requestedShipment": map[string]interface{}{
			"recipient":                 recipientPayload(req),
			"serviceType":               quote.ServiceType,
			"packagingType":             "YOUR_PACKAGING",
			"shippingChargesPayment":    map[string]string{"paymentType": "SENDER"},
			"requestedPackageLineItems": []interface{}{packagePayload(req)},
		},
	}
	headers := map[string]string{
		"x-customer-transaction-id": uuid.NewString(),
	}

	body, err := a.post(ctx, "purchase_label", "/ship/v1/shipments", payload, headers)
	if err != nil {
		return nil, err
	}

	var resp shipResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, ports.NewPermanentError("purchase_label", fmt.Errorf("failed to decode ship response: %w", err))
	}

	if len(resp.Output.TransactionShipments) == 0 {
		return nil, ports.NewPermanentError("purchase_label", fmt.Errorf("ship response contained no shipments"))
	}
	shipment := resp.Output.TransactionShipments[0]

	result := &domain.LabelResult{
		TrackingNumber:    shipment.MasterTrackingNumber,
		ServiceType:       shipment.ServiceType,
		EstimatedDelivery: parseCarrierTime(shipment.DeliveryDate),
	}
	if len(shipment.PieceResponses) > 0 && len(shipment.PieceResponses[0].PackageDocuments) > 0 {
		result.LabelURL = shipment.PieceResponses[0].PackageDocuments[0].URL
	}

	a.logger.Info("FedEx label purchased",
		zap.String("order_id", req.OrderID),
		zap.String("tracking_number", result.TrackingNumber),
		zap.String("service_type", result.ServiceType),
	)
	return result, nil
}

type trackResponse struct {
	Output struct {
		CompleteTrackResults []struct {
			TrackResults []struct {
				ScanEvents []struct {
					EventType        string `json:"eventType"`
					EventDescription string `json:"eventDescription"`
					Date             string `json:"date"`
					ScanLocation     struct {
						City                string `json:"city"`
						StateOrProvinceCode string `json:"stateOrProvinceCode"`
					} `json:"scanLocation"`
				} `json:"scanEvents"`
				EstimatedDeliveryTimeWindow struct {
					Ends string `json:"ends"`
				} `json:"estimatedDeliveryTimeWindow"`
			} `json:"trackResults"`
		} `json:"completeTrackResults"`
	} `json:"output"`
}

// Track returns all carrier-reported scans for a tracking number.
func (a *FedExAdapter) Track(ctx context.Context, trackingNumber string) ([]domain.TrackingEvent, error) {
	payload := map[string]interface{}{
		"includeDetailedScans": true,
		"trackingInfo": []interface{}{
			map[string]interface{}{
				"trackingNumberInfo": map[string]string{"trackingNumber": trackingNumber},
			},
		},
	}

	body, err := a.post(ctx, "track", "/track/v1/trackingnumbers", payload, nil)
	if err != nil {
		return nil, err
	}

	var resp trackResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, ports.NewPermanentError("track", fmt.Errorf("failed to decode track response: %w", err))
	}

	var events []domain.TrackingEvent
	for _, complete := range resp.Output.CompleteTrackResults {
		for _, result := range complete.TrackResults {
			estimated := parseCarrierTime(result.EstimatedDeliveryTimeWindow.Ends)
			for _, scan := range result.ScanEvents {
				location := scan.ScanLocation.City
				if scan.ScanLocation.StateOrProvinceCode != "" {
					location = location + ", " + scan.ScanLocation.StateOrProvinceCode
				}
				events = append(events, domain.TrackingEvent{
					Status:            scan.EventType,
					Location:          location,
					Description:       scan.EventDescription,
					Timestamp:         parseCarrierTime(scan.Date),
					EstimatedDelivery: estimated,
				})
			}
		}
	}

	a.logger.Debug("FedEx tracking events received",
		zap.String("tracking_number", trackingNumber),
		zap.Int("event_count", len(events)),
	)
	return events, nil
}

func recipientPayload(req domain.ShipmentRequest) map[string]interface{} {
	streetLines := []string{req.Address.Street1}
	if req.Address.Street2 != "" {
		streetLines = append(streetLines, req.Address.Street2)
	}
	return map[string]interface{}{
		"contact": map[string]string{
			"personName":  req.Address.Name,
			"phoneNumber": req.Address.Phone,
		},
		"address": map[string]interface{}{
			"streetLines":         streetLines,
			"city":                req.Address.City,
			"stateOrProvinceCode": req.Address.State,
			"postalCode":          req.Address.PostalCode,
			"countryCode":         req.Address.Country,
		},
	}
}

func packagePayload(req domain.ShipmentRequest) map[string]interface{} {
	return map[string]interface{}{
		"weight": map[string]interface{}{
			"units": "KG",
			"value": req.WeightKg,
		},
		"dimensions": map[string]interface{}{
			"length": req.Dimensions.LengthCm,
			"width":  req.Dimensions.WidthCm,
			"height": req.Dimensions.HeightCm,
			"units":  "CM",
		},
	}
}

// parseCarrierTime handles the two timestamp layouts the API returns.
func parseCarrierTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t
	}
	return time.Time{}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
