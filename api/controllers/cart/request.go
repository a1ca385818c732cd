package cart

import (
	cartdto "github.com/angelmondragon/numberpool/api/controllers/cart/dto"
	"github.com/angelmondragon/numberpool/internal/cart"
	dbtypes "github.com/angelmondragon/numberpool/pkg/db/types"
)

func toAddLineInput(payload cartdto.AddLineRequest) cart.AddLineInput {
	productID := payload.ProductID
	if productID == 0 {
		productID = payload.ParentProductID
	}
	return cart.AddLineInput{
		ParentProductID: payload.ParentProductID,
		ProductID:       productID,
		VariationID:     payload.VariationID,
		Quantity:        payload.Quantity,
		Numbers:         dbtypes.NumberList(payload.Numbers),
	}
}

func toDecreaseInput(payload cartdto.DecreaseRequest) cart.DecreaseInput {
	quantity := payload.Quantity
	if quantity == 0 {
		quantity = 1
	}
	return cart.DecreaseInput{
		Quantity: quantity,
		Release:  dbtypes.NumberList(payload.Release),
	}
}
