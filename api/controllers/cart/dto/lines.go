package dto

// AddLineRequest adds a product line. Numbers may be fewer than Quantity;
// the remainder are picked later through SetNumbersRequest.
type AddLineRequest struct {
	ParentProductID int64 `json:"parentProductId" validate:"gt=0"`
	ProductID       int64 `json:"productId" validate:"omitempty,gt=0"`
	VariationID     int64 `json:"variationId" validate:"omitempty,gte=0"`
	Quantity        int   `json:"quantity" validate:"gt=0,max=100"`
	Numbers         []int `json:"numbers" validate:"omitempty,unique"`
}

type SetNumbersRequest struct {
	Numbers []int `json:"numbers" validate:"unique"`
}

// DecreaseRequest shrinks a line by Quantity (default 1). Release names the
// assigned numbers to give up once the empty slots run out.
type DecreaseRequest struct {
	Quantity int   `json:"quantity" validate:"omitempty,gt=0"`
	Release  []int `json:"release" validate:"omitempty,unique"`
}
