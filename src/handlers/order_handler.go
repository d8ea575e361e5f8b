package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"coin-engine/src/engine"
	"coin-engine/src/metrics"
	"coin-engine/src/models"
	"coin-engine/src/numeric"
)

type OrderHandler struct {
	Matcher   *engine.Matcher
	Store     engine.OrderStore
	StartTime time.Time
}

func NewOrderHandler(matcher *engine.Matcher, store engine.OrderStore) *OrderHandler {
	return &OrderHandler{
		Matcher:   matcher,
		Store:     store,
		StartTime: time.Now(),
	}
}

func (h *OrderHandler) SubmitOrder(c *fiber.Ctx) error {
	var req models.SubmitOrderRequest

	if err := c.BodyParser(&req); err != nil {
		log.Warn().
			Err(err).
			Str("ip", c.IP()).
			Str("path", c.Path()).
			Msg("Invalid request: malformed JSON")
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request: malformed JSON",
		})
	}

	order, err := buildOrder(&req)
	if err != nil {
		log.Warn().
			Err(err).
			Str("coin", req.Coin).
			Str("market", req.Market).
			Str("side", req.Side).
			Str("ip", c.IP()).
			Msg("Invalid order request")
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: err.Error()})
	}

	metrics.IncOrdersReceived()
	start := time.Now()

	result, err := h.Matcher.Process(c.UserContext(), order)

	metrics.ObserveMatchLatency(time.Since(start))

	if err != nil {
		var storeErr *engine.StoreError
		if errors.As(err, &storeErr) {
			metrics.IncStoreErrors()
			log.Error().
				Err(err).
				Str("pair", order.PairKey()).
				Str("tracking_id", storeErr.TrackingID).
				Msg("Order store mirror failure")
			return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
				Error: "Order store unavailable, order not applied",
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: err.Error()})
	}

	metrics.AddFillsExecuted(order.PairKey(), len(result.Fills))
	if result.Rested {
		metrics.IncOrdersRested()
	}

	log.Info().
		Str("tracking_id", result.TrackingID).
		Str("pair", order.PairKey()).
		Str("side", string(order.Side)).
		Int("fills", len(result.Fills)).
		Bool("rested", result.Rested).
		Str("remaining", result.RemainingQuantity.String()).
		Msg("Order processed")

	return c.Status(fiber.StatusCreated).JSON(toSubmitResponse(order.PairKey(), result))
}

func buildOrder(req *models.SubmitOrderRequest) (*engine.Order, error) {
	var side engine.Side
	switch req.Side {
	case string(engine.SideBuy):
		side = engine.SideBuy
	case string(engine.SideSell):
		side = engine.SideSell
	default:
		return nil, fmt.Errorf("side must be BUY or SELL, got %q", req.Side)
	}

	if _, _, err := engine.SplitPairKey(req.Coin + "-" + req.Market); err != nil {
		return nil, err
	}

	price, err := numeric.Parse(req.Price)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal price %q", req.Price)
	}
	if !price.IsPositive() {
		return nil, engine.ErrNonPositivePrice
	}
	quantity, err := numeric.Parse(req.Quantity)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal quantity %q", req.Quantity)
	}
	if !quantity.IsPositive() {
		return nil, engine.ErrNonPositiveQuantity
	}

	fee := decimal.Zero
	if req.Fee != "" {
		if fee, err = numeric.Parse(req.Fee); err != nil || fee.IsNegative() {
			return nil, fmt.Errorf("invalid fee %q", req.Fee)
		}
	}

	return engine.NewOrder(req.MemberID, req.Coin, req.Market, side, price, quantity, fee), nil
}

func toSubmitResponse(pairKey string, result *engine.MatchResult) models.SubmitOrderResponse {
	resp := models.SubmitOrderResponse{
		TrackingID:        result.TrackingID,
		Pair:              pairKey,
		Rested:            result.Rested,
		RemainingQuantity: result.RemainingQuantity.String(),
	}
	for _, fill := range result.Fills {
		info := models.FillInfo{
			TrackingID: fill.TrackingID,
			Side:       string(fill.Side),
			Quantity:   fill.Quantity.String(),
			MatchChain: fill.MatchChain,
		}
		if fill.ExecutionPrice != nil {
			info.ExecutionPrice = fill.ExecutionPrice.String()
		}
		if fill.MatchedAt != nil {
			info.MatchedAt = fill.MatchedAt.Format(time.RFC3339Nano)
		}
		resp.Fills = append(resp.Fills, info)
	}
	return resp
}

func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	pairKey := c.Params("pair")
	trackingID := c.Params("id")

	if _, _, err := engine.SplitPairKey(pairKey); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: err.Error()})
	}

	order, err := h.Store.Get(c.UserContext(), pairKey, trackingID)
	if err != nil {
		metrics.IncStoreErrors()
		log.Error().Err(err).Str("pair", pairKey).Str("tracking_id", trackingID).Msg("Order lookup failed")
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{Error: "Order store unavailable"})
	}
	if order == nil {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{Error: "Order not found"})
	}

	resp := models.OrderResponse{
		TrackingID: order.TrackingID,
		Pair:       order.PairKey(),
		Side:       string(order.Side),
		Price:      order.Price.String(),
		Quantity:   order.Quantity.String(),
		Status:     string(order.Status),
		CreatedAt:  order.CreatedAt.Format(time.RFC3339Nano),
		MatchChain: order.MatchChain,
	}
	if order.MatchedAt != nil {
		resp.MatchedAt = order.MatchedAt.Format(time.RFC3339Nano)
	}
	if order.ExecutionPrice != nil {
		resp.ExecutionPrice = order.ExecutionPrice.String()
	}
	return c.JSON(resp)
}

func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	pairKey := c.Params("pair")
	trackingID := c.Params("id")

	if _, _, err := engine.SplitPairKey(pairKey); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: err.Error()})
	}

	order, err := h.Matcher.Cancel(c.UserContext(), pairKey, trackingID)
	if err != nil {
		if errors.Is(err, engine.ErrOrderNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{Error: "Order not found"})
		}
		var storeErr *engine.StoreError
		if errors.As(err, &storeErr) {
			metrics.IncStoreErrors()
			return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{Error: "Order store unavailable"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{Error: err.Error()})
	}

	log.Info().
		Str("tracking_id", order.TrackingID).
		Str("pair", pairKey).
		Msg("Order cancelled")

	return c.JSON(models.CancelOrderResponse{
		TrackingID: order.TrackingID,
		Status:     "CANCELLED",
	})
}

func (h *OrderHandler) GetDepth(c *fiber.Ctx) error {
	pairKey := c.Params("pair")

	if _, _, err := engine.SplitPairKey(pairKey); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: err.Error()})
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	bids, asks := h.Matcher.Depth(pairKey, limit)
	metrics.SetBookDepth(pairKey, "bid", len(bids))
	metrics.SetBookDepth(pairKey, "ask", len(asks))

	resp := models.DepthResponse{
		Pair: pairKey,
		Bids: make([]models.DepthLevelInfo, 0, len(bids)),
		Asks: make([]models.DepthLevelInfo, 0, len(asks)),
	}
	for _, level := range bids {
		resp.Bids = append(resp.Bids, models.DepthLevelInfo{
			Price:    level.Price.String(),
			Quantity: level.Quantity.String(),
		})
	}
	for _, level := range asks {
		resp.Asks = append(resp.Asks, models.DepthLevelInfo{
			Price:    level.Price.String(),
			Quantity: level.Quantity.String(),
		})
	}
	return c.JSON(resp)
}

func (h *OrderHandler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(models.HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.StartTime).Seconds()),
	})
}
