package domain

// Product is the canonical catalog entity. It is persisted split across
// two tables: the product half and the stock half, joined on the id.
type Product struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Count       int     `json:"count"`
}

// ProductRecord is the products-table half of a Product.
type ProductRecord struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// StockRecord is the stocks-table half, keyed by the owning product id.
type StockRecord struct {
	ProductID string `json:"product_id"`
	Count     int    `json:"count"`
}

func (p Product) Record() ProductRecord {
	return ProductRecord{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Price:       p.Price,
	}
}

func (p Product) Stock() StockRecord {
	return StockRecord{
		ProductID: p.ID,
		Count:     p.Count,
	}
}

// CsvRow is one parsed CSV line: header name to value, where values that
// read as numeric literals are kept as float64 and everything else as the
// original string.
type CsvRow map[string]interface{}

// NotificationEvent is the payload published to the topic after a product
// has been created.
type NotificationEvent struct {
	Message string  `json:"message"`
	Product Product `json:"product"`
}

const ProductCreatedMessage = "Product created successfully"
