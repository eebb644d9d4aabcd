package http

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/opentip/funnelhub/api"
	"github.com/opentip/funnelhub/config"
	"github.com/opentip/funnelhub/events"
	"github.com/opentip/funnelhub/logger"
	"github.com/opentip/funnelhub/service"
	"github.com/opentip/funnelhub/store"
)

type ErrorResponse struct {
	Message string `json:"message"`
}

type authTokenRequest struct {
	Password        string  `json:"password"`
	Permission      string  `json:"permission"`
	TokenExpiryDays *uint64 `json:"tokenExpiryDays"`
}

type authTokenResponse struct {
	Token string `json:"token"`
}

type jwtCustomClaims struct {
	Permission string `json:"permission,omitempty"` // "full" or "readonly"
	jwt.RegisteredClaims
}

type HttpService struct {
	api            api.API
	cfg            config.Config
	eventPublisher events.EventPublisher
}

func NewHttpService(svc service.Service, eventPublisher events.EventPublisher) *HttpService {
	return &HttpService{
		api:            api.NewAPI(svc, svc.GetDB(), svc.GetConfig(), svc.GetRatesService()),
		cfg:            svc.GetConfig(),
		eventPublisher: eventPublisher,
	}
}

func (httpSvc *HttpService) RegisterSharedRoutes(e *echo.Echo) {
	e.HideBanner = true

	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ReferrerPolicy:     "no-referrer",
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogHost:      true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, values middleware.RequestLoggerValues) error {
			logger.HttpLogger.Info().
				Str("uri", values.URI).
				Int("status", values.Status).
				Str("remote_ip", values.RemoteIP).
				Str("user_agent", values.UserAgent).
				Str("host", values.Host).
				Str("request_id", values.RequestID).
				Msg("handled API request")
			return nil
		},
	}))

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.GET("/api/info", httpSvc.infoHandler)

	// customers poll their payment with the opaque handle handed out at
	// checkout, so this route stays public
	e.GET("/api/payments/tracking/:trackingHandle", httpSvc.paymentByTrackingHandleHandler)

	// allow one token request per second
	authRateLimiter := middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(1))
	e.POST("/api/auth/token", httpSvc.authTokenHandler, authRateLimiter)

	// restricted routes
	// Configure middleware with the custom claims type
	jwtConfig := echojwt.Config{
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(jwtCustomClaims)
		},
		// use a custom key func as the JWT secret is generated on first start
		KeyFunc: func(token *jwt.Token) (interface{}, error) {
			return []byte(httpSvc.cfg.GetJWTSecret()), nil
		},
		TokenLookup: "header:Authorization:Bearer ,query:token",
	}

	// Read-only API group - accessible to both full and readonly tokens
	readOnlyApiGroup := e.Group("/api")
	readOnlyApiGroup.Use(echojwt.WithConfig(jwtConfig))

	readOnlyApiGroup.GET("/payments", httpSvc.paymentsListHandler)
	readOnlyApiGroup.GET("/payments/:paymentHash", httpSvc.lookupPaymentHandler)
	readOnlyApiGroup.GET("/payments/:paymentHash/events", httpSvc.paymentEventsListHandler)
	readOnlyApiGroup.GET("/summary", httpSvc.summaryHandler)
	readOnlyApiGroup.GET("/currencies", httpSvc.currenciesHandler)
	readOnlyApiGroup.GET("/health", httpSvc.healthHandler)
	readOnlyApiGroup.GET("/log", httpSvc.getLogOutputHandler)

	// Full access API group - requires a token with full permissions
	fullAccessApiGroup := e.Group("/api")
	fullAccessApiGroup.Use(echojwt.WithConfig(jwtConfig))
	fullAccessApiGroup.Use(httpSvc.requireFullAccess)

	fullAccessApiGroup.POST("/payments", httpSvc.createPaymentHandler)
	fullAccessApiGroup.POST("/payments/:paymentHash/cancel", httpSvc.cancelPaymentHandler)
	fullAccessApiGroup.POST("/payments/resolve-stalled", httpSvc.resolveStalledPaymentHandler)
	fullAccessApiGroup.PATCH("/settings", httpSvc.updateSettingsHandler)

	// SSE endpoint for engine events - requires auth to subscribe
	fullAccessApiGroup.GET("/events", httpSvc.paymentEventsSSEHandler)
}

func (httpSvc *HttpService) infoHandler(c echo.Context) error {
	info, err := httpSvc.api.GetInfo(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: fmt.Sprintf("Failed to get info: %s", err.Error()),
		})
	}

	return c.JSON(http.StatusOK, info)
}

func (httpSvc *HttpService) authTokenHandler(c echo.Context) error {
	var tokenRequest authTokenRequest
	if err := c.Bind(&tokenRequest); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: fmt.Sprintf("Bad request: %s", err.Error()),
		})
	}

	if !httpSvc.cfg.CheckApiPassword(tokenRequest.Password) {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "Invalid password",
		})
	}

	if tokenRequest.Permission == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Permission field is required",
		})
	}

	if !slices.Contains([]string{"full", "readonly"}, tokenRequest.Permission) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Permission field is unknown",
		})
	}

	token, err := httpSvc.createJWT(tokenRequest.TokenExpiryDays, tokenRequest.Permission)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: fmt.Sprintf("Failed to create session: %s", err.Error()),
		})
	}

	return c.JSON(http.StatusOK, &authTokenResponse{
		Token: token,
	})
}

func (httpSvc *HttpService) requireFullAccess(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := c.Get("user").(*jwt.Token)
		claims := token.Claims.(*jwtCustomClaims)

		// Allow if no permission specified (backward compatibility) or if full access
		if claims.Permission == "" || claims.Permission == "full" {
			return next(c)
		}

		return c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "This operation requires full access permissions",
		})
	}
}

func (httpSvc *HttpService) createJWT(tokenExpiryDays *uint64, permission string) (string, error) {
	if !slices.Contains([]string{"full", "readonly"}, permission) {
		return "", errors.New("invalid token permission")
	}

	expiryDays := uint64(30)
	if tokenExpiryDays != nil {
		expiryDays = *tokenExpiryDays
	}

	// Set custom claims
	claims := &jwtCustomClaims{
		Permission: permission,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 24 * time.Duration(expiryDays))),
		},
	}

	// Create token with claims
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	if token == nil {
		return "", errors.New("failed to create token")
	}

	signed, err := token.SignedString([]byte(httpSvc.cfg.GetJWTSecret()))
	if err != nil {
		return "", err
	}
	return signed, nil
}

func (httpSvc *HttpService) createPaymentHandler(c echo.Context) error {
	var createPaymentRequest api.CreatePaymentRequest
	if err := c.Bind(&createPaymentRequest); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: fmt.Sprintf("Bad request: %s", err.Error()),
		})
	}

	createPaymentResponse, err := httpSvc.api.CreatePayment(c.Request().Context(), &createPaymentRequest)
	if err != nil {
		return apiErrorResponse(c, "Failed to create payment", err)
	}

	return c.JSON(http.StatusOK, createPaymentResponse)
}

func (httpSvc *HttpService) lookupPaymentHandler(c echo.Context) error {
	paymentHash := c.Param("paymentHash")

	payment, err := httpSvc.api.GetPayment(c.Request().Context(), paymentHash)
	if err != nil {
		return apiErrorResponse(c, "Failed to lookup payment", err)
	}

	return c.JSON(http.StatusOK, payment)
}

func (httpSvc *HttpService) paymentByTrackingHandleHandler(c echo.Context) error {
	trackingHandle := c.Param("trackingHandle")

	payment, err := httpSvc.api.GetPaymentByTrackingHandle(c.Request().Context(), trackingHandle)
	if err != nil {
		return apiErrorResponse(c, "Failed to lookup payment", err)
	}

	return c.JSON(http.StatusOK, payment)
}

func (httpSvc *HttpService) paymentsListHandler(c echo.Context) error {
	ctx := c.Request().Context()

	limit := uint64(20)
	offset := uint64(0)
	var states []string

	if limitParam := c.QueryParam("limit"); limitParam != "" {
		if parsedLimit, err := strconv.ParseUint(limitParam, 10, 64); err == nil {
			limit = parsedLimit
		}
	}

	if offsetParam := c.QueryParam("offset"); offsetParam != "" {
		if parsedOffset, err := strconv.ParseUint(offsetParam, 10, 64); err == nil {
			offset = parsedOffset
		}
	}

	if statesParam := c.QueryParam("states"); statesParam != "" {
		states = strings.Split(statesParam, ",")
	}

	payments, err := httpSvc.api.ListPayments(ctx, states, limit, offset)
	if err != nil {
		return apiErrorResponse(c, "Failed to list payments", err)
	}

	return c.JSON(http.StatusOK, payments)
}

func (httpSvc *HttpService) paymentEventsListHandler(c echo.Context) error {
	paymentHash := c.Param("paymentHash")

	events, err := httpSvc.api.ListPaymentEvents(c.Request().Context(), paymentHash)
	if err != nil {
		return apiErrorResponse(c, "Failed to list payment events", err)
	}

	return c.JSON(http.StatusOK, events)
}

func (httpSvc *HttpService) cancelPaymentHandler(c echo.Context) error {
	paymentHash := c.Param("paymentHash")

	payment, err := httpSvc.api.CancelPayment(c.Request().Context(), paymentHash)
	if err != nil {
		return apiErrorResponse(c, "Failed to cancel payment", err)
	}

	return c.JSON(http.StatusOK, payment)
}

func (httpSvc *HttpService) resolveStalledPaymentHandler(c echo.Context) error {
	var resolveStalledPaymentRequest api.ResolveStalledPaymentRequest
	if err := c.Bind(&resolveStalledPaymentRequest); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: fmt.Sprintf("Bad request: %s", err.Error()),
		})
	}

	payment, err := httpSvc.api.ResolveStalledPayment(c.Request().Context(), &resolveStalledPaymentRequest)
	if err != nil {
		return apiErrorResponse(c, "Failed to resolve stalled payment", err)
	}

	return c.JSON(http.StatusOK, payment)
}

func (httpSvc *HttpService) summaryHandler(c echo.Context) error {
	since := time.Time{}
	if daysParam := c.QueryParam("days"); daysParam != "" {
		if parsedDays, err := strconv.ParseUint(daysParam, 10, 64); err == nil {
			since = time.Now().AddDate(0, 0, -int(parsedDays))
		}
	}

	summary, err := httpSvc.api.GetSummary(c.Request().Context(), since)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: fmt.Sprintf("Failed to get summary: %s", err.Error()),
		})
	}

	return c.JSON(http.StatusOK, summary)
}

func (httpSvc *HttpService) currenciesHandler(c echo.Context) error {
	currencies, err := httpSvc.api.GetCurrencies(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: fmt.Sprintf("Failed to list currencies: %s", err.Error()),
		})
	}

	return c.JSON(http.StatusOK, currencies)
}

func (httpSvc *HttpService) healthHandler(c echo.Context) error {
	healthResponse, err := httpSvc.api.Health(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: fmt.Sprintf("Failed to check health: %v", err),
		})
	}

	return c.JSON(http.StatusOK, healthResponse)
}

func (httpSvc *HttpService) getLogOutputHandler(c echo.Context) error {
	var getLogRequest api.GetLogOutputRequest
	if err := c.Bind(&getLogRequest); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: fmt.Sprintf("Bad request: %s", err.Error()),
		})
	}

	getLogResponse, err := httpSvc.api.GetLogOutput(c.Request().Context(), &getLogRequest)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: fmt.Sprintf("Failed to get log output: %v", err),
		})
	}

	return c.JSON(http.StatusOK, getLogResponse)
}

func (httpSvc *HttpService) updateSettingsHandler(c echo.Context) error {
	var updateSettingsRequest api.UpdateSettingsRequest
	if err := c.Bind(&updateSettingsRequest); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: fmt.Sprintf("Bad request: %s", err.Error()),
		})
	}

	err := httpSvc.api.UpdateSettings(&updateSettingsRequest)
	if err != nil {
		return apiErrorResponse(c, "Failed to update settings", err)
	}

	return c.NoContent(http.StatusNoContent)
}

func apiErrorResponse(c echo.Context, message string, err error) error {
	if store.IsNotFoundError(err) {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Message: err.Error(),
		})
	}
	if store.IsValidationError(err) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: err.Error(),
		})
	}
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Message: fmt.Sprintf("%s: %s", message, err.Error()),
	})
}
