package cartctrl

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	cartsvc "github.com/armorylabs/armory-backend/internal/cart"
	"github.com/armorylabs/armory-backend/pkg/enums"
)

type priceFormatter interface {
	Format(ctx context.Context, amountUSD decimal.Decimal, cur enums.Currency, loc language.Tag) (string, error)
}

type itemResponse struct {
	ProductID    string `json:"product_id"`
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	Game         string `json:"game"`
	Image        string `json:"image,omitempty"`
	Duration     string `json:"duration"`
	Quantity     int    `json:"quantity"`
	UnitPriceUSD string `json:"unit_price_usd"`
	UnitPrice    string `json:"unit_price"`
	LineTotalUSD string `json:"line_total_usd"`
	LineTotal    string `json:"line_total"`
}

type couponResponse struct {
	Code  string `json:"code"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type cartResponse struct {
	SessionID   string         `json:"session_id"`
	Items       []itemResponse `json:"items"`
	Coupon      *couponResponse `json:"coupon,omitempty"`
	SubtotalUSD string         `json:"subtotal_usd"`
	Subtotal    string         `json:"subtotal"`
	DiscountUSD string         `json:"discount_usd"`
	Discount    string         `json:"discount"`
	TotalUSD    string         `json:"total_usd"`
	Total       string         `json:"total"`
	ItemCount   int            `json:"item_count"`
	Currency    string         `json:"currency"`
}

// toCartResponse renders the cart with totals in USD plus the requested
// display currency and locale.
func toCartResponse(ctx context.Context, cart *cartsvc.Cart, prices priceFormatter, ccy enums.Currency, loc language.Tag) (*cartResponse, error) {
	resp := &cartResponse{
		SessionID: cart.SessionID,
		Items:     make([]itemResponse, 0, len(cart.Items)),
		ItemCount: cart.ItemCount(),
		Currency:  ccy.String(),
	}

	format := func(amount decimal.Decimal) (string, error) {
		if prices == nil {
			return "", nil
		}
		return prices.Format(ctx, amount, ccy, loc)
	}

	for _, item := range cart.Items {
		unitPrice, err := format(item.UnitPriceUSD)
		if err != nil {
			return nil, err
		}
		lineTotal, err := format(item.LineTotal())
		if err != nil {
			return nil, err
		}
		resp.Items = append(resp.Items, itemResponse{
			ProductID:    item.ProductID.String(),
			Slug:         item.Slug,
			Name:         item.Name,
			Game:         item.Game,
			Image:        item.Image,
			Duration:     item.Duration,
			Quantity:     item.Quantity,
			UnitPriceUSD: item.UnitPriceUSD.StringFixed(2),
			UnitPrice:    unitPrice,
			LineTotalUSD: item.LineTotal().StringFixed(2),
			LineTotal:    lineTotal,
		})
	}

	if cart.Coupon != nil {
		resp.Coupon = &couponResponse{
			Code:  cart.Coupon.Code,
			Type:  string(cart.Coupon.Type),
			Value: cart.Coupon.Value.String(),
		}
	}

	var err error
	if resp.Subtotal, err = format(cart.Subtotal()); err != nil {
		return nil, err
	}
	if resp.Discount, err = format(cart.Discount()); err != nil {
		return nil, err
	}
	if resp.Total, err = format(cart.Total()); err != nil {
		return nil, err
	}
	resp.SubtotalUSD = cart.Subtotal().StringFixed(2)
	resp.DiscountUSD = cart.Discount().StringFixed(2)
	resp.TotalUSD = cart.Total().StringFixed(2)

	return resp, nil
}
