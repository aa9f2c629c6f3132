package api

// RegisterVendorRequest is the payload to register the caller as a vendor.
type RegisterVendorRequest struct {
	Name string `json:"name" example:"Acme Goods"`
}

// AddProductRequest lists a product under the calling vendor.
// Price is per unit in the smallest currency unit.
type AddProductRequest struct {
	Name  string `json:"name" example:"widget"`
	Price uint64 `json:"price" example:"1999"`
	Stock uint64 `json:"stock" example:"10"`
}

// PurchaseRequest buys quantity units of a product. Amount must equal price*quantity.
type PurchaseRequest struct {
	Quantity uint64 `json:"quantity" example:"2"`
	Amount   uint64 `json:"amount" example:"3998"`
}

// WithdrawalResponse reports the amount paid out to the vendor.
type WithdrawalResponse struct {
	Vendor string `json:"vendor"`
	Amount uint64 `json:"amount"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Code  string `json:"code,omitempty"`
}
