package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type Int64Array []int64

func (a *Int64Array) Scan(value interface{}) error {
	if value == nil {
		*a = []int64{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan Int64Array: %v", value)
	}

	return json.Unmarshal(bytes, a)
}

func (a Int64Array) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	return json.Marshal(a)
}

type LoyaltyProgram struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	ProgramName  string `gorm:"type:varchar(128);not null"`
	ProgramType  string `gorm:"type:varchar(32);not null"` // loyalty, promo_code, gift_card, bon_achat, buy_x_get_y
	DateFrom     *time.Time
	DateTo       *time.Time
	PricelistIds Int64Array `gorm:"type:text"`
	IsNominative bool       `gorm:"not null;default:false"`
	IsActive     bool       `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Rules   []LoyaltyRule   `gorm:"foreignKey:ProgramId"`
	Rewards []LoyaltyReward `gorm:"foreignKey:ProgramId"`
}

type LoyaltyRule struct {
	ID           int64      `gorm:"primaryKey;autoIncrement"`
	ProgramId    int64      `gorm:"index;not null"`
	Mode         string     `gorm:"type:varchar(16);not null"` // auto, with_code
	Code         string     `gorm:"type:varchar(64);index"`
	PromoBarcode string     `gorm:"type:varchar(64)"`
	AnyProduct   bool       `gorm:"not null;default:false"`
	ProductIds   Int64Array `gorm:"type:text"`
	MinQuantity  int32      `gorm:"not null;default:1"`
	MinAmount    string     `gorm:"type:varchar(32);not null;default:'0.00'"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type LoyaltyReward struct {
	ID                    int64  `gorm:"primaryKey;autoIncrement"`
	ProgramId             int64  `gorm:"index;not null"`
	RewardType            string `gorm:"type:varchar(16);not null"` // discount, product, credit
	DiscountPercent       string `gorm:"type:varchar(32);not null;default:'0.00'"`
	RewardProductId       *int64
	RewardProductQty      int32  `gorm:"not null;default:0"`
	PointCost             string `gorm:"type:varchar(32);not null;default:'0.00'"`
	MultiProduct          bool   `gorm:"not null;default:false"`
	DiscountLineProductId *int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type LoyaltyCard struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	Code           string `gorm:"type:varchar(64);uniqueIndex"`
	ProgramId      int64  `gorm:"index;not null"`
	PartnerId      *int64 `gorm:"index"`
	Points         string `gorm:"type:varchar(32);not null;default:'0.00'"`
	ExpirationDate *time.Time
	State          string `gorm:"type:varchar(16);not null;default:'active'"` // active, used, expired
	SourceOrderRef *string
	UsedDate       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Program *LoyaltyProgram `gorm:"foreignKey:ProgramId"`
}

type LoyaltyHistory struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	CardId         int64  `gorm:"index;not null"`
	OrderRef       string `gorm:"type:varchar(64)"`
	Description    string `gorm:"type:text"`
	Used           string `gorm:"type:varchar(32);not null;default:'0.00'"`
	AppliedAmount  string `gorm:"type:varchar(32);not null;default:'0.00'"`
	OriginalAmount string `gorm:"type:varchar(32);not null;default:'0.00'"`
	CreatedAt      time.Time
}

type LoyaltyFamily struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	FamilyName     string `gorm:"type:varchar(128)"`
	PriceThreshold string `gorm:"type:varchar(32);not null;default:'200.00'"`
	PointsEarned   int32  `gorm:"not null;default:1"`
	IsActive       bool   `gorm:"not null;default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Product struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	ProductCode  string `gorm:"type:varchar(32);uniqueIndex;not null"`
	ProductName  string `gorm:"type:varchar(128);not null"`
	ProductPrice string `gorm:"type:varchar(32);not null"`
	IsEligible   bool   `gorm:"not null;default:true"`
	FamilyId     *int64 `gorm:"index"`
	IsActive     bool   `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Family *LoyaltyFamily `gorm:"foreignKey:FamilyId"`
}
