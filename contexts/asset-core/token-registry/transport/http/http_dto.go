package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type MintTokenRequest struct {
	To                 string `json:"to"`
	MetadataURI        string `json:"metadata_uri"`
	RoyaltyReceiver    string `json:"royalty_receiver,omitempty"`
	RoyaltyBasisPoints int64  `json:"royalty_basis_points"`
}

type TokenDTO struct {
	TokenID            int64  `json:"token_id"`
	Owner              string `json:"owner"`
	Creator            string `json:"creator"`
	MetadataURI        string `json:"metadata_uri"`
	RoyaltyReceiver    string `json:"royalty_receiver,omitempty"`
	RoyaltyBasisPoints int64  `json:"royalty_basis_points"`
	MintedAt           string `json:"minted_at"`
	UpdatedAt          string `json:"updated_at"`
}

type TokenResponse struct {
	Status string   `json:"status"`
	Data   TokenDTO `json:"data"`
}

type TransferTokenRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type UpdateMetadataRequest struct {
	MetadataURI string `json:"metadata_uri"`
}

type ApproveRequest struct {
	Approved string `json:"approved"`
}

type OperatorApprovalRequest struct {
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

type WhitelistRequest struct {
	Address string `json:"address"`
}

type RoyaltyInfoResponse struct {
	Status string `json:"status"`
	Data   struct {
		Receiver string `json:"receiver"`
		Amount   int64  `json:"amount"`
	} `json:"data"`
}

type BalanceResponse struct {
	Status string `json:"status"`
	Data   struct {
		Address string `json:"address"`
		Balance int    `json:"balance"`
	} `json:"data"`
}

type AckResponse struct {
	Status string `json:"status"`
}
