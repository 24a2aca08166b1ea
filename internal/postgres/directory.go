package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-b2b-orders/internal/apperror"
	"github.com/ariefcatur/go-b2b-orders/internal/orders"
)

// Directory serves the reference data the order service verifies against.
type Directory struct{ DB *pgxpool.Pool }

var (
	_ orders.Members       = (*Directory)(nil)
	_ orders.Buyers        = (*Directory)(nil)
	_ orders.Items         = (*Directory)(nil)
	_ orders.StockBaseline = (*Directory)(nil)
	_ orders.CostBasis     = (*Directory)(nil)
)

func (d *Directory) FindVerifiedMember(ctx context.Context, employeeID string) (*orders.Member, error) {
	var (
		m    orders.Member
		role string
	)
	err := d.DB.QueryRow(ctx, `
		SELECT member_id, employee_id, name, role FROM members WHERE employee_id=$1`, employeeID,
	).Scan(&m.MemberID, &m.EmployeeID, &m.Name, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find member: %w", err)
	}
	m.Role = orders.Role(role)
	return &m, nil
}

func (d *Directory) FindVerifiedBuyer(ctx context.Context, buyerCd string) (*orders.Buyer, error) {
	var (
		b          orders.Buyer
		status     string
		tel, email *string
	)
	err := d.DB.QueryRow(ctx, `
		SELECT buyer_id, buyer_cd, buyer_nm, tel, email, address, business_type, buyer_status
		FROM buyers WHERE buyer_cd=$1 AND buyer_status <> 'INACTIVE'`, buyerCd,
	).Scan(&b.BuyerID, &b.BuyerCd, &b.BuyerNm, &tel, &email, &b.Address, &b.BusinessType, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.ErrBuyerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find buyer: %w", err)
	}
	if tel != nil {
		b.Tel = *tel
	}
	if email != nil {
		b.Email = *email
	}
	b.Status = orders.BuyerStatus(status)
	return &b, nil
}

func (d *Directory) FindVerifiedItem(ctx context.Context, itemCd string) (*orders.Item, error) {
	var (
		it     orders.Item
		price  string
		status string
	)
	err := d.DB.QueryRow(ctx, `
		SELECT item_id, item_cd, item_nm, unit, unit_price::text, item_status
		FROM items WHERE item_cd=$1`, itemCd,
	).Scan(&it.ItemID, &it.ItemCd, &it.ItemNm, &it.Unit, &price, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find item: %w", err)
	}
	if it.UnitPrice, err = parseDecimal(price); err != nil {
		return nil, err
	}
	it.Status = orders.ItemStatus(status)
	return &it, nil
}

func (d *Directory) Baseline(ctx context.Context, itemCd string) (int64, error) {
	var n int64
	err := d.DB.QueryRow(ctx, `SELECT qty FROM item_stocks WHERE item_cd=$1`, itemCd).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stock baseline %s: %w", itemCd, err)
	}
	return n, nil
}

func (d *Directory) UnitCosts(ctx context.Context, itemCds []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(itemCds))
	if len(itemCds) == 0 {
		return out, nil
	}
	rows, err := d.DB.Query(ctx, `SELECT item_cd, unit_cost::text FROM item_costs WHERE item_cd = ANY($1)`, itemCds)
	if err != nil {
		return nil, fmt.Errorf("unit costs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cd, cost string
		if err := rows.Scan(&cd, &cost); err != nil {
			return nil, err
		}
		if out[cd], err = parseDecimal(cost); err != nil {
			return nil, err
		}
	}
	return out, rows.Err()
}
