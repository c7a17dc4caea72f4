package basket

// Basket is the minimal view of a shop basket the payment layer needs.
// It arrives from the platform as part of the payment request and is
// never written back.
type Basket struct {
	Currency string    `json:"currency" binding:"required,len=3"`
	Items    []Item    `json:"items" binding:"required,min=1,dive"`
	Delivery *Delivery `json:"delivery,omitempty"`
}

type Item struct {
	ProductCode string `json:"product_code" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required"`
	// Price and TaxRate are decimal strings as the platform renders them
	// ("49.99", "19.9"). Parsing and validation happen in Build.
	Price   string `json:"price" binding:"required"`
	TaxRate string `json:"tax_rate"`
}

type Delivery struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Cost    string `json:"cost"`
	TaxRate string `json:"tax_rate"`
}
