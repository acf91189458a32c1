package cartctrl

import (
	"github.com/google/uuid"

	cartsvc "github.com/armorylabs/armory-backend/internal/cart"
	pkgerrors "github.com/armorylabs/armory-backend/pkg/errors"
)

type addItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Duration  string `json:"duration" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=99"`
}

func (r addItemRequest) toInput() (cartsvc.AddItemInput, error) {
	productID, err := uuid.Parse(r.ProductID)
	if err != nil {
		return cartsvc.AddItemInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id")
	}
	return cartsvc.AddItemInput{
		ProductID: productID,
		Duration:  r.Duration,
		Quantity:  r.Quantity,
	}, nil
}

type updateQuantityRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Duration  string `json:"duration" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=0,max=99"`
}

type applyCouponRequest struct {
	Code string `json:"code" validate:"required,min=2,max=64"`
}
