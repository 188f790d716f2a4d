// Package gamehandler exposes the game state over REST for tooling and
// debugging; the interactive client talks over the websocket instead.
package gamehandler

import (
	"context"
	"errors"
	"net/http"

	"economicgoose/internal/auction"
	"economicgoose/internal/services/atelier"
	"economicgoose/internal/services/bank"
	"economicgoose/internal/services/character"
	"economicgoose/internal/services/company"
	"economicgoose/internal/services/economy"
	"economicgoose/internal/services/pantry"
	"economicgoose/internal/services/profile"
	"economicgoose/internal/services/warehouse"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	controller *auction.Controller
	profile    *profile.Store
	bank       *bank.Store
	warehouse  *warehouse.Store
	characters *character.Store
	company    *company.Store
	economy    *economy.Store
	pantry     *pantry.Store
	atelier    *atelier.Store
}

func New(
	controller *auction.Controller,
	profileStore *profile.Store,
	bankStore *bank.Store,
	warehouseStore *warehouse.Store,
	characterStore *character.Store,
	companyStore *company.Store,
	economyStore *economy.Store,
	pantryStore *pantry.Store,
	atelierStore *atelier.Store,
) *Handler {
	return &Handler{
		controller: controller,
		profile:    profileStore,
		bank:       bankStore,
		warehouse:  warehouseStore,
		characters: characterStore,
		company:    companyStore,
		economy:    economyStore,
		pantry:     pantryStore,
		atelier:    atelierStore,
	}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/profile", h.profileInfo)

	r.GET("/auctions", h.listAuctions)
	r.GET("/auctions/current", h.currentAuction)
	r.POST("/auctions/:id/join", h.joinAuction)
	r.POST("/auctions/bid", h.placeBid)
	r.POST("/auctions/finish", h.finishAuction)
	r.POST("/auctions/leave", h.leaveAuction)

	r.GET("/bank/offers", h.bankOffers)
	r.GET("/bank/credits", h.bankCredits)
	r.POST("/bank/credits", h.takeCredit)
	r.GET("/bank/deposits", h.bankDeposits)
	r.POST("/bank/deposits", h.openDeposit)

	r.GET("/warehouse", h.warehouseInfo)
	r.POST("/warehouse/buy", h.buyItem)
	r.POST("/warehouse/sell", h.sellItem)

	r.GET("/characters", h.listCharacters)
	r.POST("/characters/select", h.selectCharacter)
	r.POST("/characters/upgrade", h.upgradeSkill)

	r.GET("/company", h.companyInfo)
	r.POST("/company/rent", h.rentPlace)
	r.POST("/company/move", h.moveCompany)

	r.GET("/economy", h.economyInfo)
	r.GET("/economy/price", h.priceQuote)

	r.GET("/pantry", h.pantryInfo)
	r.POST("/pantry/take", h.takeFromPantry)

	r.GET("/atelier", h.atelierInfo)
	r.POST("/atelier/rent", h.rentAtelier)
	r.POST("/atelier/orders/take", h.takeOrder)
	r.POST("/atelier/orders/work", h.workOnOrder)
	r.POST("/atelier/staff/hire", h.hireStaff)
	r.POST("/atelier/staff/fire", h.fireStaff)
	r.POST("/atelier/equipment/buy", h.buyEquipment)
	r.POST("/atelier/equipment/repair", h.repairEquipment)
}

func (h *Handler) profileInfo(c *gin.Context) {
	p := h.profile.Current()
	if p == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "profile not loaded"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// ─────────────────────────────── auctions ────────────────────────────────────

func (h *Handler) listAuctions(c *gin.Context) {
	entries, err := h.controller.LoadAvailableAuctions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) currentAuction(c *gin.Context) {
	snap := h.controller.CurrentAuction()
	if snap == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no joined auction"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) joinAuction(ginCtx *gin.Context) {
	auctionID := ginCtx.Param("id")
	if err := h.controller.JoinAuction(ginCtx.Request.Context(), auctionID); err != nil {
		ginCtx.JSON(http.StatusConflict, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusOK, h.controller.CurrentAuction())
}

func (h *Handler) placeBid(ginCtx *gin.Context) {
	var body PlaceBidBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.controller.PlaceBid(ginCtx.Request.Context(), body.Amount); err != nil {
		status := http.StatusConflict
		if errors.Is(err, auction.ErrBidTooLow) || errors.Is(err, auction.ErrInsufficientFunds) {
			status = http.StatusBadRequest
		}
		ginCtx.JSON(status, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.Status(http.StatusAccepted)
}

func (h *Handler) finishAuction(ginCtx *gin.Context) {
	if err := h.controller.FinishAuction(ginCtx.Request.Context()); err != nil {
		ginCtx.JSON(http.StatusConflict, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.Status(http.StatusAccepted)
}

func (h *Handler) leaveAuction(ginCtx *gin.Context) {
	h.controller.LeaveAuction()
	ginCtx.Status(http.StatusAccepted)
}

// ─────────────────────────────── bank ────────────────────────────────────────

func (h *Handler) bankOffers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"rating":     h.bank.CreditRating(),
		"max_credit": h.bank.MaxCreditAmount(),
		"credits":    h.bank.CreditOffers(),
		"deposits":   h.bank.DepositOffers(),
	})
}

func (h *Handler) bankCredits(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"credits":             h.bank.Credits(),
		"total_debt":          h.bank.TotalDebt(),
		"monthly_obligations": h.bank.MonthlyObligations(),
	})
}

func (h *Handler) takeCredit(ginCtx *gin.Context) {
	var body TakeCreditBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	credit, err := h.bank.TakeCredit(ginCtx.Request.Context(), body.Amount, body.TermMonths, body.AnnualRate)
	if err != nil {
		ginCtx.JSON(http.StatusConflict, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusCreated, credit)
}

func (h *Handler) bankDeposits(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"deposits": h.bank.Deposits(),
		"total":    h.bank.TotalDeposits(),
	})
}

func (h *Handler) openDeposit(ginCtx *gin.Context) {
	var body OpenDepositBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	deposit, err := h.bank.OpenDeposit(ginCtx.Request.Context(), body.Amount, body.TermMonths, body.AnnualRate)
	if err != nil {
		ginCtx.JSON(http.StatusConflict, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusCreated, deposit)
}

// ─────────────────────────────── warehouse ───────────────────────────────────

func (h *Handler) warehouseInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"summary":   h.warehouse.Summary(),
		"materials": h.warehouse.Materials(),
		"clothing":  h.warehouse.Clothing(),
	})
}

func (h *Handler) buyItem(ginCtx *gin.Context) {
	h.trade(ginCtx, h.warehouse.Buy)
}

func (h *Handler) sellItem(ginCtx *gin.Context) {
	h.trade(ginCtx, h.warehouse.Sell)
}

func (h *Handler) trade(
	ginCtx *gin.Context,
	op func(ctx context.Context, kind warehouse.ItemKind, itemID string, quantity int64) error,
) {
	var body TradeBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	err := op(ginCtx.Request.Context(), warehouse.ItemKind(body.Kind), body.ItemID, body.Quantity)
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, warehouse.ErrItemNotFound) {
			status = http.StatusNotFound
		}
		ginCtx.JSON(status, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.Status(http.StatusAccepted)
}

// ─────────────────────────────── characters ──────────────────────────────────

func (h *Handler) listCharacters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"characters": h.characters.Characters(),
		"selected":   h.characters.Selected(),
	})
}

func (h *Handler) selectCharacter(ginCtx *gin.Context) {
	var body SelectCharacterBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.characters.Select(body.CharacterID); err != nil {
		ginCtx.JSON(http.StatusNotFound, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusOK, h.characters.Selected())
}

// ─────────────────────────────── company ─────────────────────────────────────

func (h *Handler) companyInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"location":  h.company.CurrentLocation(),
		"level":     h.company.Level(),
		"daily_fee": h.company.DailyFee(),
		"rented": gin.H{
			string(company.PlaceWarehouse): h.company.IsRented(company.PlaceWarehouse),
			string(company.PlaceAtelier):   h.company.IsRented(company.PlaceAtelier),
			string(company.PlaceMarket):    h.company.IsRented(company.PlaceMarket),
		},
	})
}

func (h *Handler) rentPlace(ginCtx *gin.Context) {
	var body RentPlaceBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.company.Rent(ginCtx.Request.Context(), company.Place(body.Place)); err != nil {
		ginCtx.JSON(http.StatusConflict, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.Status(http.StatusAccepted)
}

func (h *Handler) moveCompany(ginCtx *gin.Context) {
	var body MoveBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	h.company.MoveToPoint(body.PointID)
	ginCtx.JSON(http.StatusOK, h.company.CurrentLocation())
}

// ─────────────────────────────── economy ─────────────────────────────────────

func (h *Handler) economyInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"season":    h.economy.Season(),
		"inflation": h.economy.Inflation(),
		"trends":    h.economy.Trends(),
		"events":    h.economy.Events(),
	})
}

func (h *Handler) priceQuote(c *gin.Context) {
	var q PriceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"price":  h.economy.Price(q.Base, q.Category),
		"demand": h.economy.Demand(1.0, q.Category),
	})
}

// ─────────────────────────────── pantry ──────────────────────────────────────

func (h *Handler) pantryInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"materials":           h.pantry.Materials(),
		"products":            h.pantry.Products(),
		"free_material_slots": h.pantry.FreeMaterialSlots(),
		"free_product_slots":  h.pantry.FreeProductSlots(),
	})
}

func (h *Handler) takeFromPantry(ginCtx *gin.Context) {
	var body TakeMaterialsBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	taken := h.pantry.TakeMaterials(body.Name, body.Quantity)
	ginCtx.JSON(http.StatusOK, gin.H{"taken": taken})
}

// ─────────────────────────────── atelier ─────────────────────────────────────

func (h *Handler) atelierInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":            h.atelier.State(),
		"open_orders":      h.atelier.OpenOrders(),
		"staff_roster":     h.atelier.StaffRoster(),
		"shop_equipment":   h.atelier.ShopEquipment(),
		"total_efficiency": h.atelier.TotalEfficiency(),
		"daily_expenses":   h.atelier.DailyExpenses(),
		"can_take_order":   h.atelier.CanTakeOrder(),
	})
}

// rentAtelier charges the rent through the company ledger, then opens the
// workshop.
func (h *Handler) rentAtelier(ginCtx *gin.Context) {
	ctx := ginCtx.Request.Context()
	if err := h.company.Rent(ctx, company.PlaceAtelier); err != nil {
		ginCtx.JSON(http.StatusConflict, &ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.atelier.Rent(ctx); err != nil {
		ginCtx.JSON(http.StatusConflict, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusOK, h.atelier.State())
}

func (h *Handler) takeOrder(ginCtx *gin.Context) {
	var body TakeOrderBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.atelier.TakeOrder(ginCtx.Request.Context(), body.OrderID); err != nil {
		status := http.StatusConflict
		if errors.Is(err, atelier.ErrOrderNotFound) {
			status = http.StatusNotFound
		}
		ginCtx.JSON(status, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.Status(http.StatusAccepted)
}

func (h *Handler) workOnOrder(ginCtx *gin.Context) {
	var body WorkOrderBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.atelier.WorkOnOrder(ginCtx.Request.Context(), body.OrderID, body.Progress); err != nil {
		status := http.StatusConflict
		if errors.Is(err, atelier.ErrOrderNotFound) {
			status = http.StatusNotFound
		}
		ginCtx.JSON(status, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.Status(http.StatusAccepted)
}

func (h *Handler) hireStaff(ginCtx *gin.Context) {
	h.staffOp(ginCtx, h.atelier.HireStaff)
}

func (h *Handler) fireStaff(ginCtx *gin.Context) {
	h.staffOp(ginCtx, h.atelier.FireStaff)
}

func (h *Handler) staffOp(ginCtx *gin.Context, op func(ctx context.Context, staffID string) error) {
	var body StaffBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	if err := op(ginCtx.Request.Context(), body.StaffID); err != nil {
		status := http.StatusConflict
		if errors.Is(err, atelier.ErrStaffNotFound) {
			status = http.StatusNotFound
		}
		ginCtx.JSON(status, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.Status(http.StatusAccepted)
}

func (h *Handler) buyEquipment(ginCtx *gin.Context) {
	h.equipmentOp(ginCtx, h.atelier.BuyEquipment)
}

func (h *Handler) repairEquipment(ginCtx *gin.Context) {
	h.equipmentOp(ginCtx, h.atelier.RepairEquipment)
}

func (h *Handler) equipmentOp(ginCtx *gin.Context, op func(ctx context.Context, equipmentID string) error) {
	var body EquipmentBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	if err := op(ginCtx.Request.Context(), body.EquipmentID); err != nil {
		status := http.StatusConflict
		if errors.Is(err, atelier.ErrEquipmentNotFound) {
			status = http.StatusNotFound
		}
		ginCtx.JSON(status, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.Status(http.StatusAccepted)
}

func (h *Handler) upgradeSkill(ginCtx *gin.Context) {
	var body UpgradeSkillBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.characters.UpgradeSkill(body.CharacterID, body.SkillID); err != nil {
		status := http.StatusConflict
		if errors.Is(err, character.ErrCharacterNotFound) || errors.Is(err, character.ErrSkillNotFound) {
			status = http.StatusNotFound
		}
		ginCtx.JSON(status, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.Status(http.StatusAccepted)
}
