package cart

import (
	"github.com/angelmondragon/numberpool/internal/timer"
	"github.com/angelmondragon/numberpool/pkg/db/models"
	dbtypes "github.com/angelmondragon/numberpool/pkg/db/types"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
)

// AddLineInput is a new cart line. Numbers may cover fewer units than
// Quantity; the rest are empty slots.
type AddLineInput struct {
	ParentProductID int64
	ProductID       int64
	VariationID     int64
	Quantity        int
	Numbers         dbtypes.NumberList
}

func (in AddLineInput) validate() error {
	switch {
	case in.ParentProductID <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "parent product id is required")
	case in.ProductID <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	case in.Quantity <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	case len(in.Numbers) > in.Quantity:
		return pkgerrors.New(pkgerrors.CodeValidation, "more numbers than quantity")
	case in.Numbers.HasDuplicates():
		return pkgerrors.New(pkgerrors.CodeValidation, "numbers must be unique")
	}
	return nil
}

// DecreaseInput shrinks a line. Release names the assigned numbers to give up
// once the empty slots are exhausted.
type DecreaseInput struct {
	Quantity int
	Release  dbtypes.NumberList
}

// Line is the API view of a cart line.
type Line struct {
	CartKey         string `json:"cartKey"`
	ParentProductID int64  `json:"parentProductId"`
	ProductID       int64  `json:"productId"`
	VariationID     int64  `json:"variationId,omitempty"`
	Quantity        int    `json:"quantity"`
	Numbers         []int  `json:"numbers"`
	EmptySlots      int    `json:"emptySlots"`
}

// View is the cart after an operation, together with the countdown.
type View struct {
	Lines []Line       `json:"lines"`
	Timer timer.Status `json:"timer"`
}

// LogoutResult reports what the logout policy cleared.
type LogoutResult struct {
	Cleared         bool  `json:"cleared"`
	RemovedLines    int64 `json:"removedLines"`
	ReleasedNumbers int   `json:"releasedNumbers"`
}

func lineFromModel(m models.CartLine) Line {
	numbers := append([]int{}, m.Numbers...)
	return Line{
		CartKey:         m.CartKey,
		ParentProductID: m.ParentProductID,
		ProductID:       m.ProductID,
		VariationID:     m.VariationID,
		Quantity:        m.Quantity,
		Numbers:         numbers,
		EmptySlots:      m.EmptySlots(),
	}
}
