package http

// ErrorResponse is the uniform error body for settlement endpoints.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ListItemRequest struct {
	TokenID int64 `json:"token_id"`
	Price   int64 `json:"price"`
}

type PurchaseItemRequest struct {
	PaidValue int64 `json:"paid_value"`
}

type UpdatePriceRequest struct {
	Price int64 `json:"price"`
}

type SetFeeRequest struct {
	FeeBasisPoints int64 `json:"fee_basis_points"`
}

type ListingDTO struct {
	ItemID    int64  `json:"item_id"`
	TokenID   int64  `json:"token_id"`
	Seller    string `json:"seller"`
	Price     int64  `json:"price"`
	Listed    bool   `json:"listed"`
	Buyer     string `json:"buyer,omitempty"`
	ListedAt  string `json:"listed_at"`
	UpdatedAt string `json:"updated_at"`
}

type ListingResponse struct {
	Status string     `json:"status"`
	Data   ListingDTO `json:"data"`
}

type ListingPageResponse struct {
	Status string `json:"status"`
	Data   struct {
		Items      []ListingDTO `json:"items"`
		NextCursor string       `json:"next_cursor,omitempty"`
	} `json:"data"`
}

type FeeResponse struct {
	Status string `json:"status"`
	Data   struct {
		FeeBasisPoints int64 `json:"fee_basis_points"`
	} `json:"data"`
}

type AckResponse struct {
	Status string `json:"status"`
}
