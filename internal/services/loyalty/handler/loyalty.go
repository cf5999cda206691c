package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"fidelio-pos/internal/database/models"
	"fidelio-pos/internal/loyalty"
)

const (
	PROGRAMS_CACHE_KEY     = "loyalty_programs:all"
	SESSION_DATA_CACHE_KEY = "loyalty_session:data"
	CARD_CACHE_PREFIX      = "loyalty_card:"
	PROGRAMS_CACHE_TTL     = 10 * time.Minute
	SESSION_DATA_CACHE_TTL = 5 * time.Minute
	CARD_CACHE_TTL         = 2 * time.Minute
)

const (
	CARD_STATE_ACTIVE  = "active"
	CARD_STATE_USED    = "used"
	CARD_STATE_EXPIRED = "expired"
)

type LoyaltyHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewLoyaltyHandler(db *gorm.DB, redisClient *redis.Client) *LoyaltyHandler {
	return &LoyaltyHandler{
		db:    db,
		redis: redisClient,
	}
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func successResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	}
}

func errorResponse(message string) APIResponse {
	return APIResponse{
		Success: false,
		Message: message,
	}
}

// --- Request structs ---

type UseCodeRequest struct {
	Code        string `json:"code" binding:"required"`
	OrderDate   string `json:"order_date,omitempty"`
	PartnerID   int64  `json:"partner_id,omitempty"`
	PricelistID int64  `json:"pricelist_id,omitempty"`
}

type IssueVoucherRequest struct {
	ProgramID      int64  `json:"program_id" binding:"required"`
	Amount         string `json:"amount" binding:"required"`
	PartnerID      *int64 `json:"partner_id,omitempty"`
	ExpirationDays int    `json:"expiration_days,omitempty"`
	SourceOrderRef string `json:"source_order_ref,omitempty"`
}

type FinalizeCardUpdate struct {
	CardID         int64  `json:"card_id" binding:"required"`
	PointsDelta    string `json:"points_delta" binding:"required"`
	Consumed       bool   `json:"consumed,omitempty"`
	AppliedAmount  string `json:"applied_amount,omitempty"`
	OriginalAmount string `json:"original_amount,omitempty"`
	Description    string `json:"description,omitempty"`
}

type FinalizeOrderRequest struct {
	OrderRef string               `json:"order_ref" binding:"required"`
	Cards    []FinalizeCardUpdate `json:"cards" binding:"required,min=1"`
}

type ProvisionalCardUpload struct {
	ProvisionalID int64  `json:"provisional_id" binding:"required"`
	Code          string `json:"code,omitempty"`
	ProgramID     int64  `json:"program_id" binding:"required"`
	PartnerID     *int64 `json:"partner_id,omitempty"`
	Points        string `json:"points,omitempty"`
}

type UploadProvisionalRequest struct {
	OrderRef string                  `json:"order_ref,omitempty"`
	Cards    []ProvisionalCardUpload `json:"cards" binding:"required,min=1"`
}

// UseCode validates an entered coupon or voucher code against the live
// database. Validation failures are part of the payload, not HTTP errors:
// the terminal branches on the structured reason.
func (h *LoyaltyHandler) UseCode(c *gin.Context) {
	var req UseCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	orderDate := time.Now()
	if req.OrderDate != "" {
		if parsed, err := time.Parse(time.RFC3339, req.OrderDate); err == nil {
			orderDate = parsed
		}
	}

	var card models.LoyaltyCard
	err := h.db.WithContext(c.Request.Context()).
		Preload("Program").
		Where("code = ?", req.Code).
		First(&card).Error
	if err == gorm.ErrRecordNotFound {
		c.JSON(http.StatusOK, failurePayload(loyalty.ReasonNotFound, "This coupon is invalid"))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Database error"))
		return
	}

	if payload := validateCard(&card, req, orderDate); payload != nil {
		c.JSON(http.StatusOK, payload)
		return
	}

	points, _ := decimal.NewFromString(card.Points)
	c.JSON(http.StatusOK, &loyalty.CodeValidation{
		Successful:     true,
		CouponID:       card.ID,
		ProgramID:      card.ProgramId,
		PartnerID:      derefInt64(card.PartnerId),
		Points:         points,
		HasSourceOrder: card.SourceOrderRef != nil && *card.SourceOrderRef != "",
	})
}

func validateCard(card *models.LoyaltyCard, req UseCodeRequest, orderDate time.Time) *loyalty.CodeValidation {
	if card.State == CARD_STATE_USED {
		return failurePayload(loyalty.ReasonExhausted, "This coupon has already been used")
	}

	points, err := decimal.NewFromString(card.Points)
	if err != nil || !points.IsPositive() {
		return failurePayload(loyalty.ReasonExhausted, "This coupon has no remaining balance")
	}

	if card.ExpirationDate != nil && card.ExpirationDate.Before(startOfDay(orderDate)) {
		return failurePayload(loyalty.ReasonExpired, "This coupon is expired")
	}

	program := card.Program
	if program == nil || !program.IsActive {
		return failurePayload(loyalty.ReasonNotFound, "No active program found for this coupon")
	}
	if program.DateFrom != nil && orderDate.Before(startOfDay(*program.DateFrom)) {
		return failurePayload(loyalty.ReasonNotStarted, "This program is not yet valid")
	}
	if program.DateTo != nil && orderDate.After(endOfDay(*program.DateTo)) {
		return failurePayload(loyalty.ReasonProgramExpired, "This program is expired")
	}
	if len(program.PricelistIds) > 0 && !containsInt64(program.PricelistIds, req.PricelistID) {
		return failurePayload(loyalty.ReasonWrongPricelist, "This coupon requires a specific pricelist")
	}
	if program.IsNominative && card.PartnerId != nil && req.PartnerID != 0 && *card.PartnerId != req.PartnerID {
		return failurePayload(loyalty.ReasonWrongCustomer, "This coupon is reserved for another customer")
	}
	return nil
}

// CardPartnerByCode resolves a scanned loyalty-card code to the owning
// partner. Only loyalty-type programs qualify; promo and voucher codes
// return 0 so the terminal falls through to coupon validation.
func (h *LoyaltyHandler) CardPartnerByCode(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, errorResponse("Missing code parameter"))
		return
	}

	var card models.LoyaltyCard
	err := h.db.WithContext(c.Request.Context()).
		Joins("JOIN loyalty_programs ON loyalty_programs.id = loyalty_cards.program_id").
		Where("loyalty_cards.code = ? AND loyalty_programs.program_type = ?", code, string(loyalty.ProgramLoyalty)).
		First(&card).Error
	if err == gorm.ErrRecordNotFound {
		c.JSON(http.StatusOK, gin.H{"partner_id": 0})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Database error"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"partner_id": derefInt64(card.PartnerId)})
}

// GetCard returns the partner's card under a program, redis-cached.
func (h *LoyaltyHandler) GetCard(c *gin.Context) {
	programID, err1 := parseInt64Query(c, "program_id")
	partnerID, err2 := parseInt64Query(c, "partner_id")
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid program_id or partner_id"))
		return
	}

	ctx := c.Request.Context()
	cacheKey := fmt.Sprintf("%s%d:%d", CARD_CACHE_PREFIX, programID, partnerID)
	if cached, err := h.redis.Get(ctx, cacheKey).Result(); err == nil {
		var payload gin.H
		if json.Unmarshal([]byte(cached), &payload) == nil {
			c.JSON(http.StatusOK, payload)
			return
		}
	}

	var card models.LoyaltyCard
	err := h.db.WithContext(ctx).
		Where("program_id = ? AND partner_id = ? AND state = ?", programID, partnerID, CARD_STATE_ACTIVE).
		First(&card).Error
	if err == gorm.ErrRecordNotFound {
		c.JSON(http.StatusOK, gin.H{"found": false})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Database error"))
		return
	}

	payload := gin.H{"found": true, "card": toEngineCard(&card)}
	if data, err := json.Marshal(payload); err == nil {
		h.redis.Set(ctx, cacheKey, data, CARD_CACHE_TTL)
	}
	c.JSON(http.StatusOK, payload)
}

// SessionData returns everything a terminal preloads at session start:
// programs with rules and rewards, products, families and the card subset
// usable offline (active, positive balance, not expired).
func (h *LoyaltyHandler) SessionData(c *gin.Context) {
	ctx := c.Request.Context()

	if cached, err := h.redis.Get(ctx, SESSION_DATA_CACHE_KEY).Result(); err == nil {
		c.Data(http.StatusOK, "application/json", []byte(cached))
		return
	}

	var programs []models.LoyaltyProgram
	if err := h.db.WithContext(ctx).
		Preload("Rules").Preload("Rewards").
		Where("is_active = ?", true).
		Order("id").
		Find(&programs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to load programs"))
		return
	}

	var products []models.Product
	if err := h.db.WithContext(ctx).Where("is_active = ?", true).Find(&products).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to load products"))
		return
	}

	var families []models.LoyaltyFamily
	if err := h.db.WithContext(ctx).Where("is_active = ?", true).Find(&families).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to load families"))
		return
	}

	// Only cards that can actually be redeemed are shipped to terminals;
	// exhausted and expired ones would just bloat the offline cache.
	var cards []models.LoyaltyCard
	if err := h.db.WithContext(ctx).
		Where("state = ? AND points::numeric > 0 AND (expiration_date IS NULL OR expiration_date >= ?)",
			CARD_STATE_ACTIVE, startOfDay(time.Now())).
		Find(&cards).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to load cards"))
		return
	}

	payload := gin.H{
		"programs": programs,
		"products": products,
		"families": families,
		"cards":    cards,
	}
	if data, err := json.Marshal(payload); err == nil {
		h.redis.Set(ctx, SESSION_DATA_CACHE_KEY, data, SESSION_DATA_CACHE_TTL)
	}
	c.JSON(http.StatusOK, payload)
}

// IssueVoucher creates a gift card or purchase voucher with a generated
// code and the given monetary balance.
func (h *LoyaltyHandler) IssueVoucher(c *gin.Context) {
	var req IssueVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		c.JSON(http.StatusBadRequest, errorResponse("Amount must be a positive decimal"))
		return
	}

	var program models.LoyaltyProgram
	if err := h.db.WithContext(c.Request.Context()).First(&program, req.ProgramID).Error; err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Program not found"))
		return
	}

	card := models.LoyaltyCard{
		Code:      uuid.New().String(),
		ProgramId: req.ProgramID,
		PartnerId: req.PartnerID,
		Points:    amount.StringFixed(2),
		State:     CARD_STATE_ACTIVE,
	}
	if req.ExpirationDays > 0 {
		exp := startOfDay(time.Now()).AddDate(0, 0, req.ExpirationDays)
		card.ExpirationDate = &exp
	}
	if req.SourceOrderRef != "" {
		card.SourceOrderRef = &req.SourceOrderRef
	}

	if err := h.db.WithContext(c.Request.Context()).Create(&card).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to create voucher"))
		return
	}

	h.invalidateSessionCache(c.Request.Context())
	c.JSON(http.StatusCreated, successResponse("Voucher created", gin.H{
		"card_id": card.ID,
		"code":    card.Code,
		"points":  card.Points,
	}))
}

// FinalizeOrder applies the balance changes of a finalized order in one
// transaction and writes the history ledger. Replaying the same order_ref
// is a no-op, which makes terminal retries after a dropped response safe.
func (h *LoyaltyHandler) FinalizeOrder(c *gin.Context) {
	var req FinalizeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx := c.Request.Context()

	var existing int64
	if err := h.db.WithContext(ctx).Model(&models.LoyaltyHistory{}).
		Where("order_ref = ?", req.OrderRef).Count(&existing).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Database error"))
		return
	}
	if existing > 0 {
		c.JSON(http.StatusOK, successResponse("Order already finalized", gin.H{"replayed": true}))
		return
	}

	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, update := range req.Cards {
			var card models.LoyaltyCard
			if err := tx.First(&card, update.CardID).Error; err != nil {
				return fmt.Errorf("card %d: %w", update.CardID, err)
			}

			points, err := decimal.NewFromString(card.Points)
			if err != nil {
				return fmt.Errorf("card %d has invalid balance %q", card.ID, card.Points)
			}
			delta, err := decimal.NewFromString(update.PointsDelta)
			if err != nil {
				return fmt.Errorf("card %d: invalid points delta %q", card.ID, update.PointsDelta)
			}

			newPoints := points.Add(delta)
			if newPoints.IsNegative() {
				return fmt.Errorf("card %d: balance would go negative", card.ID)
			}

			card.Points = newPoints.StringFixed(2)
			if update.Consumed {
				now := time.Now()
				card.State = CARD_STATE_USED
				card.UsedDate = &now
				// Purchase vouchers are one-shot: any remainder is
				// forfeited with the consumption.
				card.Points = "0.00"
			}
			if err := tx.Save(&card).Error; err != nil {
				return err
			}

			history := models.LoyaltyHistory{
				CardId:         card.ID,
				OrderRef:       req.OrderRef,
				Description:    update.Description,
				Used:           delta.Neg().StringFixed(2),
				AppliedAmount:  zeroIfEmpty(update.AppliedAmount),
				OriginalAmount: zeroIfEmpty(update.OriginalAmount),
			}
			if err := tx.Create(&history).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("loyalty: finalize order %s failed: %v", req.OrderRef, err)
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
		return
	}

	h.invalidateSessionCache(ctx)
	c.JSON(http.StatusOK, successResponse("Order finalized", gin.H{"replayed": false}))
}

// UploadProvisional registers cards a terminal created offline under
// synthetic negative identifiers and returns the server-issued mapping.
func (h *LoyaltyHandler) UploadProvisional(c *gin.Context) {
	var req UploadProvisionalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	mappings := make(map[string]int64)
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		for _, upload := range req.Cards {
			if upload.ProvisionalID >= 0 {
				return fmt.Errorf("id %d is not provisional", upload.ProvisionalID)
			}

			code := upload.Code
			if code == "" {
				code = uuid.New().String()
			}
			card := models.LoyaltyCard{
				Code:      code,
				ProgramId: upload.ProgramID,
				PartnerId: upload.PartnerID,
				Points:    zeroIfEmpty(upload.Points),
				State:     CARD_STATE_ACTIVE,
			}
			if err := tx.Create(&card).Error; err != nil {
				return err
			}
			mappings[fmt.Sprintf("%d", upload.ProvisionalID)] = card.ID
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
		return
	}

	h.invalidateSessionCache(c.Request.Context())
	c.JSON(http.StatusOK, successResponse("Provisional cards registered", gin.H{"mappings": mappings}))
}

// Status reports whether an order reference has been finalized.
func (h *LoyaltyHandler) Status(c *gin.Context) {
	ref := c.Param("ref")

	var count int64
	if err := h.db.WithContext(c.Request.Context()).Model(&models.LoyaltyHistory{}).
		Where("order_ref = ?", ref).Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, loyalty.StatusResult{
			Success: false,
			Error:   "database error",
		})
		return
	}

	if count == 0 {
		c.JSON(http.StatusOK, loyalty.StatusResult{Success: true, Status: "pending"})
		return
	}
	c.JSON(http.StatusOK, loyalty.StatusResult{Success: true, Status: loyalty.StatusDone})
}

func (h *LoyaltyHandler) invalidateSessionCache(ctx context.Context) {
	if err := h.redis.Del(ctx, SESSION_DATA_CACHE_KEY, PROGRAMS_CACHE_KEY).Err(); err != nil && err != redis.Nil {
		log.Printf("loyalty: failed to invalidate session cache: %v", err)
	}
}

// --- Helpers ---

func failurePayload(reason loyalty.Reason, message string) *loyalty.CodeValidation {
	return &loyalty.CodeValidation{
		Successful:   false,
		Reason:       reason,
		ErrorMessage: message,
	}
}

func toEngineCard(card *models.LoyaltyCard) *loyalty.Card {
	points, _ := decimal.NewFromString(card.Points)
	return &loyalty.Card{
		ID:             card.ID,
		Code:           card.Code,
		ProgramID:      card.ProgramId,
		PartnerID:      derefInt64(card.PartnerId),
		Points:         points,
		ExpirationDate: card.ExpirationDate,
	}
}

func parseInt64Query(c *gin.Context, name string) (int64, error) {
	var value int64
	_, err := fmt.Sscanf(c.Query(name), "%d", &value)
	return value, err
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func containsInt64(values []int64, target int64) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func zeroIfEmpty(s string) string {
	if s == "" {
		return "0.00"
	}
	return s
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).Add(24*time.Hour - time.Nanosecond)
}
