package enums

// ProductType identifies whether the purchasable line is the product itself or
// one of its variations.
type ProductType string

const (
	ProductTypeSimple    ProductType = "simple"
	ProductTypeVariation ProductType = "variation"
)

var validProductTypes = []ProductType{
	ProductTypeSimple,
	ProductTypeVariation,
}

func (p ProductType) IsValid() bool {
	return oneOf(p, validProductTypes)
}

func ParseProductType(value string) (ProductType, error) {
	return parse("product type", value, validProductTypes)
}
