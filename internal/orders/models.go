package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type BuyerStatus string

const (
	BuyerActive   BuyerStatus = "ACTIVE"
	BuyerInactive BuyerStatus = "INACTIVE"
)

type ItemStatus string

const (
	ItemOnSale     ItemStatus = "ON_SALE"
	ItemNotForSale ItemStatus = "NOT_FOR_SALE"
)

type Role string

const (
	RoleEmployee Role = "EMPLOYEE"
	RoleManager  Role = "MANAGER"
)

type Buyer struct {
	BuyerID      int64       `json:"buyerId"`
	BuyerCd      string      `json:"buyerCd"`
	BuyerNm      string      `json:"buyerNm"`
	Tel          string      `json:"tel"`
	Email        string      `json:"email"`
	Address      string      `json:"address"`
	BusinessType string      `json:"businessType"`
	Status       BuyerStatus `json:"buyerStatus"`
}

type Item struct {
	ItemID    int64           `json:"itemId"`
	ItemCd    string          `json:"itemCd"`
	ItemNm    string          `json:"itemNm"`
	Unit      string          `json:"unit"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Status    ItemStatus      `json:"itemStatus"`
}

// Member is the authenticated employee acting on an order.
type Member struct {
	MemberID   int64  `json:"memberId"`
	EmployeeID string `json:"employeeId"`
	Name       string `json:"name"`
	Role       Role   `json:"role"`
}

func (m *Member) CanDecide() bool {
	return m != nil && m.Role == RoleManager
}

type OrderHeader struct {
	OrderID     int64       `json:"orderId"`
	OrderCd     string      `json:"orderCd"`
	Status      Status      `json:"orderStatus"`
	RequestDate time.Time   `json:"requestDate"`
	CreatedAt   time.Time   `json:"createdAt"`
	BuyerCd     string      `json:"buyerCd"`
	BuyerNm     string      `json:"buyerNm"`
	EmployeeID  string      `json:"employeeId"`
	Lines       []OrderLine `json:"orderItems"`
}

// ItemCodes returns the distinct item codes of the order lines, in line order.
func (h *OrderHeader) ItemCodes() []string {
	seen := make(map[string]bool, len(h.Lines))
	out := make([]string, 0, len(h.Lines))
	for _, l := range h.Lines {
		if !seen[l.ItemCd] {
			seen[l.ItemCd] = true
			out = append(out, l.ItemCd)
		}
	}
	return out
}

func (h *OrderHeader) clone() *OrderHeader {
	cp := *h
	cp.Lines = append([]OrderLine(nil), h.Lines...)
	return &cp
}

type OrderLine struct {
	LineID    int64           `json:"orderItemId"`
	OrderID   int64           `json:"orderId"`
	ItemCd    string          `json:"itemCd"`
	Qty       int64           `json:"qty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	StartDate time.Time       `json:"startDate"`
	EndDate   time.Time       `json:"endDate"`
	Unit      string          `json:"unit"`
}

// SaleHistory is an immutable snapshot of an order taken on every mutation.
type SaleHistory struct {
	HistoryID   int64       `json:"saleHistoryId"`
	CreatedAt   time.Time   `json:"createdAt"`
	EmployeeID  string      `json:"employeeId"`
	OrderID     int64       `json:"orderId"`
	OrderCd     string      `json:"orderCd"`
	OrderStatus Status      `json:"orderStatus"`
	OrderDate   time.Time   `json:"orderDate"`
	RequestDate time.Time   `json:"requestDate"`
	BuyerNm     string      `json:"buyerNm"`
	BuyerCd     string      `json:"buyerCd"`
	Lines       []OrderLine `json:"orderItems"`
}

type InventoryDto struct {
	ItemCd    string `json:"itemCd"`
	Available int64  `json:"available"`
}

type SaleReportDto struct {
	ItemCd     string          `json:"itemCd"`
	ItemNm     string          `json:"itemNm"`
	TotalQty   int64           `json:"totalQty"`
	Revenue    decimal.Decimal `json:"revenue"`
	Cost       decimal.Decimal `json:"cost"`
	MarginRate decimal.Decimal `json:"marginRate"`
}

// SaleLine is the per-item aggregate the store returns for a report window.
type SaleLine struct {
	ItemCd  string
	ItemNm  string
	Qty     int64
	Revenue decimal.Decimal
}
