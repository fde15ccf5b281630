package ops

// ListInput contains parameters for the List operation.
type ListInput struct {
	Limit  int // default: 20, max: 100
	Offset int // default: 0
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []HandoffSummary `json:"items"`
	Pagination Pagination       `json:"pagination"`
	Sort       string           `json:"sort"`
}

// List returns stored handoffs, newest first. Handoffs whose files no
// longer load are listed with Readable false.
func List(env *Env, input ListInput) (*ListOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := max(input.Offset, 0)

	ids, err := env.Store.List()
	if err != nil {
		return nil, err
	}
	total := len(ids)
	latest, _ := env.Store.LatestID()

	items := []HandoffSummary{}
	if offset < total {
		for _, id := range ids[offset:min(offset+limit, total)] {
			h, ok := env.Store.Open(id)
			if !ok {
				items = append(items, HandoffSummary{ID: id, Latest: id == latest})
				continue
			}
			items = append(items, summarize(h, id == latest))
		}
	}

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "created_desc",
	}, nil
}
