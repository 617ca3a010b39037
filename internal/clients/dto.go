package clients

type CreateClientRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	ParentID *int64 `json:"parent_id,omitempty" validate:"omitempty,gt=0"`
}

type UpdateClientRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,max=200"`
	ParentID *int64  `json:"parent_id,omitempty"`
	Hidden   *bool   `json:"hidden,omitempty"`
}

type VisibleOrderRequest struct {
	ClientIDs []int64 `json:"client_ids" validate:"required,min=1,dive,gt=0"`
}
