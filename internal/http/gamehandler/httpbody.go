package gamehandler

type ErrorResponse struct {
	Error string `json:"error"`
}

type PlaceBidBody struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

type TakeCreditBody struct {
	Amount     int64   `json:"amount" binding:"required,gt=0"`
	TermMonths int     `json:"term_months" binding:"required,gt=0"`
	AnnualRate float64 `json:"annual_rate" binding:"required,gt=0"`
}

type OpenDepositBody struct {
	Amount     int64   `json:"amount" binding:"required,gt=0"`
	TermMonths int     `json:"term_months" binding:"required,gt=0"`
	AnnualRate float64 `json:"annual_rate" binding:"required,gt=0"`
}

type TradeBody struct {
	Kind     string `json:"kind" binding:"required,oneof=material clothing"`
	ItemID   string `json:"item_id" binding:"required"`
	Quantity int64  `json:"quantity" binding:"required,gt=0"`
}

type SelectCharacterBody struct {
	CharacterID int `json:"character_id" binding:"required"`
}

type UpgradeSkillBody struct {
	CharacterID int `json:"character_id" binding:"required"`
	SkillID     int `json:"skill_id" binding:"required"`
}

type RentPlaceBody struct {
	Place string `json:"place" binding:"required,oneof=warehouse atelier market"`
}

type MoveBody struct {
	PointID int `json:"point_id" binding:"required"`
}

type PriceQuery struct {
	Base     int64  `form:"base" binding:"required,gt=0"`
	Category string `form:"category"`
}

type TakeMaterialsBody struct {
	Name     string `json:"name" binding:"required"`
	Quantity int64  `json:"quantity" binding:"required,gt=0"`
}

type TakeOrderBody struct {
	OrderID string `json:"order_id" binding:"required"`
}

type WorkOrderBody struct {
	OrderID  string `json:"order_id" binding:"required"`
	Progress int    `json:"progress" binding:"required,gt=0,lte=100"`
}

type StaffBody struct {
	StaffID string `json:"staff_id" binding:"required"`
}

type EquipmentBody struct {
	EquipmentID string `json:"equipment_id" binding:"required"`
}
